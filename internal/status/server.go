// Package status exposes the bot's liveness and counters over HTTP and the
// standard gRPC health protocol.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported to gRPC health checks alongside the
// server-wide "" entry.
const Service = "totembot.Bot"

// Config holds listen addresses.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	// PollInterval is how often readiness is re-read into the gRPC health state.
	PollInterval time.Duration
	// LevelHandler, when set, is mounted at /loglevel for GET and PUT.
	LevelHandler http.Handler
}

// Reporter returns a JSON-encodable view of one component.
type Reporter func() any

// Server serves /healthz, /readyz and /status plus grpc.health.v1.Health.
type Server struct {
	cfg    Config
	ready  func() bool
	logger *zap.Logger
	engine *gin.Engine
	health *health.Server
	grpc   *grpc.Server
	start  time.Time

	mu        sync.Mutex
	reporters map[string]Reporter
	httpSrv   *http.Server
}

// New creates the status server. ready decides the readiness answer.
//
// Precondition: ready and logger must not be nil.
func New(cfg Config, ready func() bool, logger *zap.Logger) *Server {
	if ready == nil {
		panic("status.New: ready must not be nil")
	}
	if logger == nil {
		panic("status.New: logger must not be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	s := &Server{
		cfg:       cfg,
		ready:     ready,
		logger:    logger,
		health:    health.NewServer(),
		grpc:      grpc.NewServer(),
		start:     time.Now(),
		reporters: make(map[string]Reporter),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.engine = s.routes()
	s.Refresh()
	return s
}

// Register adds a named reporter to the /status document.
func (s *Server) Register(name string, p Reporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reporters[name] = p
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Refresh copies the readiness answer into the gRPC health state.
func (s *Server) Refresh() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(Service, st)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if !s.ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.document())
	})
	if s.cfg.LevelHandler != nil {
		h := gin.WrapH(s.cfg.LevelHandler)
		r.GET("/loglevel", h)
		r.PUT("/loglevel", h)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

func (s *Server) document() gin.H {
	s.mu.Lock()
	names := make([]string, 0, len(s.reporters))
	for name := range s.reporters {
		names = append(names, name)
	}
	reporters := make(map[string]Reporter, len(s.reporters))
	for k, v := range s.reporters {
		reporters[k] = v
	}
	s.mu.Unlock()
	sort.Strings(names)

	doc := gin.H{
		"ready":  s.ready(),
		"uptime": time.Since(s.start).Round(time.Millisecond).String(),
	}
	for _, name := range names {
		doc[name] = reporters[name]()
	}
	return doc
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("status: request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("code", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Start listens on both addresses and serves until Stop or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", s.cfg.HTTPAddr, err)
	}
	grpcLn, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("status: listen %s: %w", s.cfg.GRPCAddr, err)
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve runs both servers on the given listeners and refreshes the gRPC
// health state every PollInterval.
//
// Postcondition: returns the first serve error, or nil after Stop.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status: http: %w", err)
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("status: grpc: %w", err)
			return
		}
		errCh <- nil
	}()
	s.logger.Info("status: listening",
		zap.String("http_addr", httpLn.Addr().String()),
		zap.String("grpc_addr", grpcLn.Addr().String()),
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil
		case err := <-errCh:
			s.Stop()
			return err
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Stop marks the service NOT_SERVING and shuts both servers down.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("status: http shutdown", zap.Error(err))
		}
	}
	s.grpc.GracefulStop()
}
