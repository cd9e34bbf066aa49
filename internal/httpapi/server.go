package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/protocol"
	"github.com/dshills/codecontext/internal/session"
	"github.com/dshills/codecontext/internal/vectorindex"
)

const (
	// ServiceName is reported by /info
	ServiceName = "codecontext"
	// DefaultShutdownGrace bounds how long in-flight requests may finish
	DefaultShutdownGrace = 10 * time.Second
)

// Backend is the session surface served over HTTP.
// *session.Session satisfies it.
type Backend interface {
	protocol.Service
	Root() string
	Health(ctx context.Context) session.HealthReport
	StoreHealth(ctx context.Context) vectorindex.HealthReport
}

// Options configures a Server
type Options struct {
	Logger        *zap.Logger
	Version       string
	ShutdownGrace time.Duration
}

// Server serves health, info, shutdown and RPC endpoints for one session
type Server struct {
	backend    Backend
	dispatcher *protocol.Dispatcher
	engine     *gin.Engine
	logger     *zap.Logger
	version    string
	grace      time.Duration
	started    time.Time

	port     atomic.Int64
	requests atomic.Int64
	failures atomic.Int64

	shutdownOnce sync.Once
	shutdown     chan string
}

// New builds the router. Call Serve to accept connections.
func New(backend Backend, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	s := &Server{
		backend:    backend,
		dispatcher: protocol.NewDispatcher(backend, logger),
		logger:     logger,
		version:    opts.Version,
		grace:      grace,
		started:    time.Now(),
		shutdown:   make(chan string, 1),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.trackRequests, s.logRequests)
	s.registerRoutes(engine)
	s.engine = engine
	return s
}

func (s *Server) registerRoutes(r gin.IRouter) {
	r.GET("/health", s.health)
	r.GET("/health/detailed", s.healthDetailed)
	r.GET("/health/database", s.healthDatabase)
	r.GET("/info", s.info)
	r.POST("/shutdown", s.requestShutdown)
	r.POST("/rpc", s.rpc)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on ln until ctx is cancelled, a shutdown is
// requested over HTTP, or the listener fails. In-flight requests get the
// shutdown grace period to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.port.Store(int64(Port(ln)))
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("server stopping", zap.String("reason", "context done"))
	case reason := <-s.shutdown:
		s.logger.Info("server stopping", zap.String("reason", reason))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) triggerShutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.shutdown <- reason
	})
}
