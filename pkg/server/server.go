// Package server implements the certroom relay: a mutually-authenticated
// TLS listener that binds each connection to the identity in its client
// certificate, tracks room membership, and fans chat text out to room
// members.
package server

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"certroom/pkg/audit"
	"certroom/pkg/protocol"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

// Server is the certroom relay server.
type Server struct {
	config    TOMLConfig
	tlsConfig *tls.Config
	listener  net.Listener
	wsServer  *http.Server
	sessions  *SessionManager
	rooms     *RoomDirectory
	metrics   *Metrics
	auditLog  *audit.Log // nil when auditing is disabled
	shutdown  chan struct{}
	wg        sync.WaitGroup
	startTime time.Time

	// Connection deltas for periodic reporting
	connectionsSinceReport    atomic.Int64
	disconnectionsSinceReport atomic.Int64
}

// NewServer creates a new relay server from a loaded configuration.
func NewServer(config TOMLConfig) (*Server, error) {
	tlsConfig, err := loadTLSConfig(
		expandHome(config.TLS.CertFile),
		expandHome(config.TLS.KeyFile),
		expandHome(config.TLS.CAFile),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	if err := initLoggers(expandHome(config.Server.DataDir)); err != nil {
		return nil, fmt.Errorf("failed to initialize loggers: %w", err)
	}

	metrics := NewMetrics()
	sessions := NewSessionManager()
	sessions.SetMetrics(metrics)
	rooms := NewRoomDirectory()
	rooms.SetMetrics(metrics)

	var auditLog *audit.Log
	if config.Audit.Enabled {
		auditLog, err = audit.Open(expandHome(config.Audit.DatabasePath))
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	return &Server{
		config:    config,
		tlsConfig: tlsConfig,
		sessions:  sessions,
		rooms:     rooms,
		metrics:   metrics,
		auditLog:  auditLog,
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
	}, nil
}

// initLoggers sets up the error and debug loggers. The error log goes to
// stderr and errors.log; the debug log is discarded until
// EnableDebugLogging is called.
func initLoggers(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	errorLogPath := filepath.Join(dataDir, "errors.log")
	errorFile, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	// Startup marker, for distinguishing between runs
	startupMsg := fmt.Sprintf("=== Server started at %s ===\n", time.Now().Format(time.RFC3339))
	if _, err := errorFile.WriteString(startupMsg); err != nil {
		return err
	}

	errorLog = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

	// Standard log goes to stdout and server.log; truncate on startup to
	// avoid confusion from multiple runs
	serverLogPath := filepath.Join(dataDir, "server.log")
	serverLogFile, err := os.OpenFile(serverLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, serverLogFile))

	return nil
}

// EnableDebugLogging enables debug logging to debug.log in the data dir.
func (s *Server) EnableDebugLogging() {
	dataDir := expandHome(s.config.Server.DataDir)

	debugLogPath := filepath.Join(dataDir, "debug.log")
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		log.Printf("Failed to open debug.log: %v", err)
		return
	}

	debugLog = log.New(debugLogFile, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// Start starts the TLS listener and the auxiliary HTTP servers.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddr, err)
	}
	s.listener = tls.NewListener(listener, s.tlsConfig)

	log.Printf("Relay listening on %s (mutual TLS)", listener.Addr())

	// Internal metrics server - never expose publicly
	if s.config.Server.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", s.metrics.Handler())
		metricsMux.HandleFunc("/health", s.HealthHandler)
		go func() {
			log.Printf("Metrics server listening on %s (/metrics, /health) - INTERNAL ONLY", s.config.Server.MetricsAddr)
			if err := http.ListenAndServe(s.config.Server.MetricsAddr, metricsMux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Optional WebSocket transport, same mutual-TLS requirements
	if s.config.Server.WSAddr != "" {
		if err := s.startWSServer(); err != nil {
			s.listener.Close()
			return fmt.Errorf("failed to start WebSocket server: %w", err)
		}
	}

	s.wg.Add(1)
	go s.metricsLoggingLoop()

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the address the relay listener is bound to. Useful when the
// configured port is 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")

	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
		log.Println("TLS listener closed")
	}

	if s.wsServer != nil {
		s.wsServer.Close()
		s.wsServer = nil
		log.Println("WebSocket listener closed")
	}

	log.Println("Closing all client sessions...")
	s.sessions.CloseAll()

	log.Println("Waiting for background goroutines to finish...")
	s.wg.Wait()

	if s.auditLog != nil {
		log.Println("Flushing audit log...")
		if err := s.auditLog.Close(); err != nil {
			log.Printf("Error closing audit log: %v", err)
			return err
		}
	}

	log.Println("Graceful shutdown complete")
	return nil
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection completes the TLS handshake, binds the peer identity,
// and runs the session loop. Handshake or identity failure drops the
// connection before any session state exists.
func (s *Server) handleConnection(conn net.Conn) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		// tls.NewListener only produces *tls.Conn; anything else is a bug
		errorLog.Printf("Accepted non-TLS connection from %s", conn.RemoteAddr())
		conn.Close()
		return
	}

	// Force the handshake now instead of on first read, so credential
	// failures are rejected before a session is registered.
	if err := tlsConn.Handshake(); err != nil {
		debugLog.Printf("TLS handshake from %s failed: %v", conn.RemoteAddr(), err)
		s.metrics.RecordHandshakeFailure()
		conn.Close()
		return
	}

	identity, err := peerIdentity(tlsConn.ConnectionState())
	if err != nil {
		s.rejectForIdentity(tlsConn, err)
		return
	}

	sess := s.sessions.Register(identity, tlsConn)
	s.connectionsSinceReport.Add(1)
	debugLog.Printf("Session %d: user %q connected from %s", sess.ID, identity, conn.RemoteAddr())
	s.auditRecord(audit.Event{Type: audit.EventConnect, Identity: identity, RemoteAddr: sess.RemoteAddr})

	s.runSession(sess)
}

// rejectForIdentity sends the explanatory message for a credential that
// yields no identity, then drops the connection.
func (s *Server) rejectForIdentity(conn net.Conn, cause error) {
	reply := protocol.NoCommonNameReply
	if cause == ErrNoCertificate {
		reply = protocol.NoCertificateReply
	}

	if err := protocol.WriteMessage(conn, reply); err != nil {
		debugLog.Printf("Failed to send identity rejection to %s: %v", conn.RemoteAddr(), err)
	}
	debugLog.Printf("Rejected %s: %v", conn.RemoteAddr(), cause)
	s.metrics.RecordIdentityFailure()
	conn.Close()
}

// runSession reads and dispatches messages until the connection dies. All
// connection-scoped state is released on every exit path, including panics
// in a handler: a fault in one session must never reach the accept loop or
// other sessions.
func (s *Server) runSession(sess *Session) {
	defer s.teardownSession(sess)
	defer func() {
		if r := recover(); r != nil {
			errorLog.Printf("Session %d: handler panic: %v", sess.ID, r)
		}
	}()

	for {
		// No read deadline: a silent peer holds its handler until it
		// disconnects (see ServerSection).
		line, err := sess.Conn.ReadMessage()
		if err != nil {
			if err == io.EOF {
				debugLog.Printf("Session %d: client disconnected", sess.ID)
			} else {
				debugLog.Printf("Session %d: read error: %v", sess.ID, err)
			}
			return
		}

		debugLog.Printf("Session %d <- RECV: %q", sess.ID, line)
		s.dispatch(sess, line)
	}
}

// teardownSession performs disconnect cleanup: leave the room, remove the
// session, then tell the remaining sessions about any room-list change.
func (s *Server) teardownSession(sess *Session) {
	room, deleted := s.rooms.Leave(sess)
	s.sessions.Remove(sess.ID)
	s.disconnectionsSinceReport.Add(1)

	if room != "" {
		// leave_room semantics: the room-list broadcast fires whether or
		// not the room was deleted
		s.broadcastRoomList()
	}
	if deleted {
		s.auditRecord(audit.Event{Type: audit.EventRoomDeleted, Identity: sess.Identity, Room: room})
	}
	s.auditRecord(audit.Event{Type: audit.EventDisconnect, Identity: sess.Identity, RemoteAddr: sess.RemoteAddr})
}

// dispatch routes one inbound message to a room operation or to chat
// broadcast. Soft failures (unknown room, not in a room) are replies to the
// sender only; the session stays live.
func (s *Server) dispatch(sess *Session, line string) {
	cmd := protocol.ParseCommand(line)

	switch cmd.Kind {
	case protocol.KindGetRoomList:
		if err := s.sendRoomList(sess); err != nil {
			debugLog.Printf("Session %d: room-list reply failed: %v", sess.ID, err)
		}

	case protocol.KindCreateRoom:
		s.handleCreateRoom(sess, cmd.Room)

	case protocol.KindJoinRoom:
		s.handleJoinRoom(sess, cmd.Room)

	case protocol.KindChat:
		s.handleChat(sess, cmd.Text)
	}
}

func (s *Server) handleCreateRoom(sess *Session, name string) {
	if !protocol.ValidRoomName(name) {
		s.reply(sess, protocol.InvalidRoomReply(name))
		return
	}

	res := s.rooms.Create(sess, name)
	debugLog.Printf("Session %d: user %q entered room %q (created=%v)", sess.ID, sess.Identity, name, res.Created)

	if res.Created {
		s.auditRecord(audit.Event{Type: audit.EventRoomCreated, Identity: sess.Identity, Room: name})
	}
	if res.DeletedPrior {
		s.auditRecord(audit.Event{Type: audit.EventRoomDeleted, Identity: sess.Identity, Room: res.LeftPrior})
	}

	// Every connected session gets the updated list, members or not
	s.broadcastRoomList()
}

func (s *Server) handleJoinRoom(sess *Session, name string) {
	if !protocol.ValidRoomName(name) {
		s.reply(sess, protocol.RoomMissingReply(name))
		return
	}

	res, ok := s.rooms.Join(sess, name)
	if !ok {
		s.reply(sess, protocol.RoomMissingReply(name))
		return
	}

	debugLog.Printf("Session %d: user %q joined room %q", sess.ID, sess.Identity, name)
	s.reply(sess, protocol.JoinedReply(name))

	if res.DeletedPrior {
		s.auditRecord(audit.Event{Type: audit.EventRoomDeleted, Identity: sess.Identity, Room: res.LeftPrior})
	}
	if res.LeftPrior != "" {
		// The auto-leave is a leave_room, and leave_room always triggers
		// the room-list broadcast
		s.broadcastRoomList()
	}
}

func (s *Server) handleChat(sess *Session, text string) {
	room := sess.Room()
	if room == "" {
		s.reply(sess, protocol.NotInRoomReply)
		return
	}

	s.broadcastChat(room, sess, text)
}

// reply sends a text reply to one session, logging delivery failure.
func (s *Server) reply(sess *Session, text string) {
	if err := sess.Conn.WriteMessage(text); err != nil {
		debugLog.Printf("Session %d: reply failed: %v", sess.ID, err)
	}
}

// auditRecord records an audit event if auditing is enabled.
func (s *Server) auditRecord(ev audit.Event) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.Record(ev)
}

// HealthHandler reports basic liveness information as JSON.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"active_sessions": s.sessions.Count(),
		"open_rooms":      s.rooms.Count(),
	})
}

// metricsLoggingLoop periodically logs key runtime numbers.
func (s *Server) metricsLoggingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			connected := s.connectionsSinceReport.Swap(0)
			disconnected := s.disconnectionsSinceReport.Swap(0)

			log.Printf("[METRICS] Active sessions: %d, open rooms: %d, connected since last: %d, disconnected since last: %d, goroutines: %d",
				s.sessions.Count(), s.rooms.Count(), connected, disconnected, runtime.NumGoroutine())
		}
	}
}
