package server

import (
	"net"
	"sync"

	"certroom/pkg/protocol"
)

// SafeConn wraps a net.Conn with automatic write synchronization to prevent
// concurrent writes from corrupting wire frames.
//
// Multiple goroutines (the connection's own handler and broadcast senders
// for other connections) may write to the same connection simultaneously.
// Without synchronization their frame bytes interleave on the wire.
//
// SafeConn encapsulates both the connection and its write mutex, making it
// impossible to write without proper synchronization.
type SafeConn struct {
	conn net.Conn
	mu   sync.Mutex // Protects writes to conn
}

// NewSafeConn wraps a net.Conn with write synchronization.
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteMessage frames and sends a text message with automatic write
// synchronization. This is the ONLY way to write to the connection - the
// raw conn is private.
func (sc *SafeConn) WriteMessage(text string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return protocol.WriteMessage(sc.conn, text)
}

// ReadMessage reads one framed message from the connection.
// Reads don't need write synchronization.
func (sc *SafeConn) ReadMessage() (string, error) {
	return protocol.ReadMessage(sc.conn)
}

// Close closes the underlying connection.
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// RemoteAddr returns the remote network address.
func (sc *SafeConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
