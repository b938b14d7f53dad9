// Package protocol implements the certroom wire protocol: length-prefixed
// UTF-8 text frames, plus the command grammar and reply formats layered on
// top of them.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/pierrec/lz4/v4"
)

const (
	// MaxFrameSize is the maximum allowed frame size (64 KiB)
	MaxFrameSize = 64 * 1024

	// CompressionThreshold is the minimum payload size to consider compression (512 bytes)
	CompressionThreshold = 512
)

// Flag constants
const (
	FlagCompressed = 0x01 // Bit 0: LZ4 block compression
)

var (
	ErrFrameTooLarge        = errors.New("frame exceeds maximum size (64 KiB)")
	ErrInvalidFrameLength   = errors.New("invalid frame length")
	ErrInvalidUTF8          = errors.New("payload is not valid UTF-8")
	ErrDecompressionFailed  = errors.New("decompression failed")
	ErrInvalidCompressedLen = errors.New("invalid compressed payload length")
)

// Frame format: [Length (4 bytes, big-endian)][Flags (1 byte)][Payload (N bytes)]
//
// Length counts the flags byte plus the payload. The payload is UTF-8 text.
// The reference behavior sent raw unframed chunks, so a single read could
// contain zero, one, or several logical messages; the length prefix makes
// message boundaries explicit.

// CompressPayload compresses data using LZ4 and prepends the uncompressed size.
// Format: [Uncompressed Size (4 bytes, big-endian)][LZ4 Compressed Data]
// Returns the original data if compression doesn't reduce size.
func CompressPayload(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return data, false
	}

	maxCompressedSize := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, 4+maxCompressedSize)

	binary.BigEndian.PutUint32(compressed[:4], uint32(len(data)))

	n, err := lz4.CompressBlock(data, compressed[4:], nil)
	if err != nil || n == 0 {
		// Compression failed or data is incompressible
		return data, false
	}

	// Only use compression if it actually saves space
	compressedTotal := 4 + n
	if compressedTotal >= len(data) {
		return data, false
	}

	return compressed[:compressedTotal], true
}

// DecompressPayload decompresses LZ4-compressed data.
// Expects format: [Uncompressed Size (4 bytes, big-endian)][LZ4 Compressed Data]
func DecompressPayload(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrInvalidCompressedLen
	}

	uncompressedSize := binary.BigEndian.Uint32(data[:4])

	// Sanity check: don't allocate more than MaxFrameSize
	if uncompressedSize > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	decompressed := make([]byte, uncompressedSize)

	n, err := lz4.UncompressBlock(data[4:], decompressed)
	if err != nil {
		return nil, ErrDecompressionFailed
	}

	if n != int(uncompressedSize) {
		return nil, ErrDecompressionFailed
	}

	return decompressed, nil
}

// WriteMessage frames a text message and writes it to w as a single Write
// call, automatically compressing payloads larger than CompressionThreshold
// when compression saves space. A single Write keeps the frame intact on
// transports that map each Write to one message unit (WebSocket binary
// messages).
func WriteMessage(w io.Writer, text string) error {
	payload := []byte(text)
	var flags uint8

	if len(payload) >= CompressionThreshold {
		compressed, wasCompressed := CompressPayload(payload)
		if wasCompressed {
			payload = compressed
			flags |= FlagCompressed
		}
	}

	// Length counts the flags byte plus the payload
	length := uint32(1 + len(payload))
	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 0, 5+len(payload))
	buf = binary.BigEndian.AppendUint32(buf, length)
	buf = append(buf, flags)
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one framed message from r and returns its text.
func ReadMessage(r io.Reader) (string, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}
	length := binary.BigEndian.Uint32(header[:])

	if length > MaxFrameSize {
		return "", ErrFrameTooLarge
	}
	// Length must be at least 1 (flags byte)
	if length < 1 {
		return "", ErrInvalidFrameLength
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", err
	}

	flags := body[0]
	payload := body[1:]

	if flags&FlagCompressed != 0 && len(payload) > 0 {
		decompressed, err := DecompressPayload(payload)
		if err != nil {
			return "", err
		}
		payload = decompressed
	}

	if !utf8.Valid(payload) {
		return "", ErrInvalidUTF8
	}

	return string(payload), nil
}

// EncodeMessage is a helper that frames a message into a byte slice.
func EncodeMessage(text string) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteMessage(buf, text); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage is a helper that reads one framed message from a byte slice.
func DecodeMessage(data []byte) (string, error) {
	return ReadMessage(bytes.NewReader(data))
}
