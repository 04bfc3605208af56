// ABOUTME: Sink-side websocket server
// ABOUTME: Accepts source sessions and serves the sink's methods, signals and data
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/internal/version"
	"github.com/Resonate-Protocol/resonate-stream/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-stream/pkg/sink"
)

// ServerConfig holds server settings
type ServerConfig struct {
	Name         string        // sink name reported in the hello reply
	FriendlyName string        // display name (default Name)
	SendQueue    int           // per-session outbound queue (default 256)
	PingInterval time.Duration // keepalive (default 30s)
	WriteTimeout time.Duration // per frame (default 10s)
	HelloTimeout time.Duration // wait for the source hello (default 5s)
	Logger       *zerolog.Logger
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Name == "" {
		c.Name = "sink"
	}
	if c.FriendlyName == "" {
		c.FriendlyName = c.Name
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = 5 * time.Second
	}
	return c
}

// Server exposes a sink to sources over websockets
type Server struct {
	config   ServerConfig
	sink     *sink.Sink
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server for s
func NewServer(config ServerConfig, s *sink.Sink) *Server {
	config = config.withDefaults()
	log := logging.Or(config.Logger, "transport")

	return &Server{
		config: config,
		sink:   s,
		log:    log,
		upgrader: websocket.Upgrader{
			// sinks serve trusted local networks; non-browser sources send no Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// ServeHTTP upgrades the request and runs the session until it ends
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	hello, err := s.readHello(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		conn.Close()
		return
	}

	sess := newSession(s, conn, uuid.New().String(), hello)
	if !s.register(sess) {
		conn.Close()
		return
	}
	defer s.unregister(sess)

	reply := protocol.HelloReply{
		SessionID:    sess.id,
		Name:         s.config.Name,
		FriendlyName: s.config.FriendlyName,
		Version:      version.Interfaces,
		Product:      version.Product,
		Manufacturer: version.Manufacturer,
	}
	msg, err := protocol.NewMessage(protocol.KindHello, "", 0, reply)
	if err != nil {
		conn.Close()
		return
	}
	if err := sess.writeJSON(msg); err != nil {
		s.log.Warn().Err(err).Msg("failed to send hello reply")
		conn.Close()
		return
	}

	sess.run()
}

func (s *Server) readHello(conn *websocket.Conn) (protocol.Hello, error) {
	var hello protocol.Hello

	conn.SetReadDeadline(time.Now().Add(s.config.HelloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("failed to read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return hello, fmt.Errorf("failed to parse hello: %w", err)
	}
	if msg.Kind != protocol.KindHello {
		return hello, fmt.Errorf("expected hello, got %s", msg.Kind)
	}
	if err := msg.Decode(&hello); err != nil {
		return hello, err
	}
	if hello.ClientID == "" {
		return hello, fmt.Errorf("hello missing client id")
	}
	return hello, nil
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.wg.Done()
}

// Sessions returns the number of connected sources
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close disconnects every session and waits for them to finish
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	s.wg.Wait()
}
