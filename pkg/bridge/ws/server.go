// Package ws serves live session output to browsers and scripts over a
// websocket, with plain HTTP endpoints for the latest state and metrics.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"padscope/pkg/engine"
	"padscope/pkg/logger"
	"padscope/pkg/protocol"
)

const (
	OpHello  = "hello"
	OpPacket = "packet"

	readLimit    = 4096
	writeTimeout = 5 * time.Second
)

type HelloMsg struct {
	Op        string         `json:"op"`
	Name      string         `json:"name"`
	SessionID string         `json:"session_id"`
	State     *logger.Record `json:"state,omitempty"`
}

type PacketMsg struct {
	Op string `json:"op"`
	logger.Record
}

type Server struct {
	cfg      Config
	hub      *engine.Hub
	log      zerolog.Logger
	gatherer prometheus.Gatherer
	router   chi.Router

	clients map[*client]struct{}
	mu      sync.RWMutex

	sub     chan protocol.Packet
	subOnce sync.Once

	latest   *logger.Record
	latestMu sync.RWMutex

	dropped atomic.Uint64
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithGatherer exposes g on /metrics. Without it the route is not mounted.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewServer(cfg Config, hub *engine.Hub, opts ...Option) *Server {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaults.SendBuf
	}

	s := &Server{
		cfg:     cfg,
		hub:     hub,
		log:     zerolog.Nop(),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/state", s.handleState)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if s.sub != nil {
			s.hub.Unsubscribe(s.sub)
		}
		return fmt.Errorf("bridge listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Subscribe registers the bridge with the hub. Packets published after it
// returns reach /state and websocket clients. Call it before starting the
// producer; Serve calls it itself when it has not been called yet.
func (s *Server) Subscribe() {
	s.subOnce.Do(func() {
		s.sub = s.hub.Subscribe()
	})
}

// Serve takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.Subscribe()
	sub := s.sub
	defer s.hub.Unsubscribe(sub)
	go s.broadcastLoop(ctx, sub)

	s.log.Info().Str("addr", ln.Addr().String()).Msg("bridge listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeClients()
		return nil
	case err := <-errCh:
		s.closeClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Dropped counts messages not queued to slow websocket clients.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(s.hello()); err != nil {
		s.removeClient(c)
		c.close()
		return
	}

	go c.writeLoop()
	c.readLoop()

	s.removeClient(c)
	c.close()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	rec := s.latestState()
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) hello() HelloMsg {
	return HelloMsg{
		Op:        OpHello,
		Name:      s.cfg.Name,
		SessionID: fmt.Sprintf("%d", time.Now().UTC().UnixNano()),
		State:     s.latestState(),
	}
}

func (s *Server) latestState() *logger.Record {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan protocol.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-sub:
			if !ok {
				return
			}
			s.broadcastPacket(pkt)
		}
	}
}

func (s *Server) broadcastPacket(pkt protocol.Packet) {
	rec := logger.NewRecord(pkt)
	if pkt.Kind == protocol.KindState {
		s.latestMu.Lock()
		s.latest = &rec
		s.latestMu.Unlock()
	}

	payload, err := json.Marshal(PacketMsg{Op: OpPacket, Record: rec})
	if err != nil {
		s.log.Warn().Err(err).Msg("encode packet")
		return
	}
	for _, c := range s.snapshotClients() {
		if !c.trySend(payload) {
			s.dropped.Add(1)
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func (s *Server) closeClients() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	conn.SetReadLimit(readLimit)
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
	}
}

// readLoop drains control frames until the peer goes away. Clients have
// nothing to say to the bridge.
func (c *client) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

func (c *client) trySend(msg []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
