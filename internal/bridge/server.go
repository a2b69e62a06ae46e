package bridge

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

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Sink receives decoded snapshots.
type Sink interface {
	Offer(s *world.Snapshot) uint64
}

// Config tunes the bridge.
type Config struct {
	Addr          string
	Path          string
	WriteTimeout  time.Duration
	DispatchRate  float64
	DispatchBurst int
}

// Status reports the bridge state.
type Status struct {
	Connected bool   `json:"connected"`
	Terrain   bool   `json:"terrain"`
	Snapshots uint64 `json:"snapshots"`
	Rejected  uint64 `json:"rejected"`
	Commands  uint64 `json:"commands"`
	Declined  uint64 `json:"declined"`
}

// session is the single connected game client.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	terrain *world.Terrain
}

// Server accepts one game client at a time. A new connection replaces the
// previous one.
type Server struct {
	cfg      Config
	sink     Sink
	logger   *zap.Logger
	upgrader websocket.Upgrader
	limiter  *rate.Limiter
	mux      *http.ServeMux

	mu     sync.Mutex
	active *session
	srv    *http.Server

	snapshots atomic.Uint64
	rejected  atomic.Uint64
	commands  atomic.Uint64
	declined  atomic.Uint64
}

// NewServer creates a bridge delivering snapshots to sink.
//
// Precondition: sink and logger must not be nil; cfg.DispatchRate > 0.
func NewServer(cfg Config, sink Sink, logger *zap.Logger) *Server {
	if sink == nil {
		panic("bridge.NewServer: sink must not be nil")
	}
	if logger == nil {
		panic("bridge.NewServer: logger must not be nil")
	}
	if cfg.Path == "" {
		cfg.Path = "/bot"
	}
	if cfg.DispatchBurst < 1 {
		cfg.DispatchBurst = 1
	}
	s := &Server{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The client is the local game process; there is no browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.DispatchRate), cfg.DispatchBurst),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc(cfg.Path, s.Handle)
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Status returns a copy of the bridge counters.
func (s *Server) Status() Status {
	s.mu.Lock()
	st := Status{Connected: s.active != nil}
	if s.active != nil {
		st.Terrain = s.active.terrain != nil
	}
	s.mu.Unlock()
	st.Snapshots = s.snapshots.Load()
	st.Rejected = s.rejected.Load()
	st.Commands = s.commands.Load()
	st.Declined = s.declined.Load()
	return st
}

// Handle upgrades the request and reads client messages until the
// connection closes.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("bridge: upgrade failed", zap.Error(err))
		return
	}
	sess := &session{conn: conn}

	s.mu.Lock()
	prev := s.active
	s.active = sess
	s.mu.Unlock()
	if prev != nil {
		s.logger.Info("bridge: replacing client", zap.String("remote", prev.conn.RemoteAddr().String()))
		prev.conn.Close()
	}
	s.logger.Info("bridge: client connected", zap.String("remote", conn.RemoteAddr().String()))

	defer func() {
		s.mu.Lock()
		if s.active == sess {
			s.active = nil
		}
		s.mu.Unlock()
		conn.Close()
		s.logger.Info("bridge: client disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("bridge: read ended", zap.Error(err))
			}
			return
		}
		if err := s.receive(sess, payload); err != nil {
			s.rejected.Add(1)
			s.logger.Warn("bridge: rejected client message", zap.Error(err))
			if werr := s.write(sess, ErrorMessage{Type: TypeError, Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

func (s *Server) receive(sess *session, payload []byte) error {
	msg, err := DecodeClientMessage(payload)
	if err != nil {
		return err
	}
	switch msg.Type {
	case TypeTerrain:
		t, err := msg.Terrain()
		if err != nil {
			return err
		}
		s.mu.Lock()
		sess.terrain = t
		s.mu.Unlock()
		s.logger.Info("bridge: terrain loaded", zap.Int("width", t.Width), zap.Int("height", t.Height))
		return nil
	default:
		s.mu.Lock()
		t := sess.terrain
		s.mu.Unlock()
		var sight world.Sight
		if t != nil {
			sight = t
		}
		snap, err := msg.Snapshot(sight)
		if err != nil {
			return err
		}
		s.snapshots.Add(1)
		s.sink.Offer(snap)
		return nil
	}
}

func (s *Server) write(sess *session, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bridge: marshal: %w", err)
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if s.cfg.WriteTimeout > 0 {
		sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)) //nolint:errcheck
	}
	return sess.conn.WriteMessage(websocket.TextMessage, data)
}

// Start listens on cfg.Addr and serves until Stop.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
	s.logger.Info("bridge: listening", zap.String("addr", ln.Addr().String()), zap.String("path", s.cfg.Path))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge: serve: %w", err)
	}
	return nil
}

// Stop shuts the listener down and closes the active client.
func (s *Server) Stop() {
	s.mu.Lock()
	srv, sess := s.srv, s.active
	s.mu.Unlock()
	if sess != nil {
		sess.writeMu.Lock()
		sess.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		sess.writeMu.Unlock()
		sess.conn.Close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("bridge: shutdown", zap.Error(err))
		}
	}
}
