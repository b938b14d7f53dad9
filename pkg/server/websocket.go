package server

import (
	"crypto/tls"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"certroom/pkg/audit"
	"certroom/pkg/protocol"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers cannot present client certificates from arbitrary origins
	// anyway; native clients set no Origin header. Accept all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startWSServer starts the optional WebSocket transport. It shares the
// relay's mutual-TLS configuration: the HTTPS handshake demands a client
// certificate chaining to the same trust anchor, and the identity comes
// from the same common-name extraction.
func (s *Server) startWSServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	ln, err := net.Listen("tcp", s.config.Server.WSAddr)
	if err != nil {
		return err
	}

	s.wsServer = &http.Server{
		Handler:   mux,
		TLSConfig: s.tlsConfig.Clone(),
	}

	tlsLn := tls.NewListener(ln, s.wsServer.TLSConfig)
	log.Printf("WebSocket transport listening on %s (/ws, mutual TLS)", ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.wsServer.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
			select {
			case <-s.shutdown:
			default:
				log.Printf("WebSocket server error: %v", err)
			}
		}
	}()

	return nil
}

// handleWebSocket upgrades the request and runs the same session loop as
// the raw TLS transport, with frames carried in binary WebSocket messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.TLS == nil {
		http.Error(w, protocol.NoCertificateReply, http.StatusForbidden)
		s.metrics.RecordIdentityFailure()
		return
	}

	identity, err := peerIdentity(*r.TLS)
	if err != nil {
		reply := protocol.NoCommonNameReply
		if err == ErrNoCertificate {
			reply = protocol.NoCertificateReply
		}
		http.Error(w, reply, http.StatusForbidden)
		s.metrics.RecordIdentityFailure()
		return
	}

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	conn := newWSConn(ws)
	sess := s.sessions.Register(identity, conn)
	s.connectionsSinceReport.Add(1)
	debugLog.Printf("Session %d: user %q connected from %s (websocket)", sess.ID, identity, r.RemoteAddr)
	s.auditRecord(audit.Event{Type: audit.EventConnect, Identity: identity, RemoteAddr: sess.RemoteAddr})

	s.runSession(sess)
}

// wsConn adapts a *websocket.Conn to net.Conn so the frame codec and the
// session loop work unchanged. Each Write becomes one binary WebSocket
// message; the frame codec emits exactly one Write per frame, so frames and
// messages stay aligned. Read streams across message boundaries.
//
// Writes are serialized by the owning SafeConn, which also satisfies
// gorilla's one-concurrent-writer requirement.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader // current message reader, nil between messages
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(b []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(b)
		if err == io.EOF {
			// Message exhausted; move on to the next one
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
