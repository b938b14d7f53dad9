package protocol

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty message", text: ""},
		{name: "simple command", text: "GET_ROOM_LIST"},
		{name: "chat text with spaces", text: "hi there, everyone"},
		{name: "unicode", text: "привет, 世界"},
		{name: "large compressible payload", text: strings.Repeat("lobby,", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, tt.text))

			got, err := ReadMessage(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.text, got)
			assert.Zero(t, buf.Len(), "frame should be fully consumed")
		})
	}
}

func TestWriteMessageTooLarge(t *testing.T) {
	// Incompressible payload at the frame limit: with the flags byte it no
	// longer fits, and compression can't save random data
	payload := make([]byte, MaxFrameSize)
	rng := rand.New(rand.NewSource(7))
	rng.Read(payload)

	var buf bytes.Buffer
	err := WriteMessage(&buf, string(payload))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadMessageRejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer
	// Length field claims 2 MB
	buf.Write([]byte{0x00, 0x20, 0x00, 0x00})

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadMessageRejectsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00})

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrInvalidFrameLength)
}

func TestReadMessageRejectsInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	// Length 3: flags byte + two invalid bytes
	buf.Write([]byte{0x00, 0x00, 0x00, 0x03, 0x00, 0xff, 0xfe})

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, "hello rooms"))

	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := ReadMessage(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestMultipleMessagesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	messages := []string{"CREATE_ROOM:lobby", "hello", "GET_ROOM_LIST"}
	for _, msg := range messages {
		require.NoError(t, WriteMessage(&buf, msg))
	}

	for _, want := range messages {
		got, err := ReadMessage(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, buf.Len())
}

func TestCompressionRoundTrip(t *testing.T) {
	// Repetitive text well above the threshold compresses
	text := strings.Repeat("room-list-entry,", 200)

	encoded, err := EncodeMessage(text)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(text), "payload should have been compressed on the wire")

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)
}

func TestCompressPayloadIncompressible(t *testing.T) {
	// High-entropy data should be sent as-is
	data := make([]byte, 1024)
	rng := rand.New(rand.NewSource(42))
	rng.Read(data)

	_, compressed := CompressPayload(data)
	assert.False(t, compressed)
}

func TestDecompressPayloadErrors(t *testing.T) {
	_, err := DecompressPayload([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidCompressedLen)

	// Claimed uncompressed size above frame limit
	_, err = DecompressPayload([]byte{0xff, 0xff, 0xff, 0xff, 0x00})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// Garbage compressed body
	_, err = DecompressPayload([]byte{0x00, 0x00, 0x01, 0x00, 0xde, 0xad, 0xbe, 0xef})
	assert.ErrorIs(t, err, ErrDecompressionFailed)
}
