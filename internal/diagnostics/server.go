package diagnostics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/conductor/config"
	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/orchestrator"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// Server serves the diagnostics router until its context ends.
type Server struct {
	server       *http.Server
	config       config.DiagnosticsConfig
	logger       logger.Logger
	shutdownOnce sync.Once

	mu   sync.Mutex
	addr string
}

// NewServer creates a stopped diagnostics server.
func NewServer(cfg config.DiagnosticsConfig, o *orchestrator.Orchestrator, m observability.Metrics, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	return &Server{
		server: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewRouter(o, m, l),
			ReadHeaderTimeout: 5 * time.Second,
		},
		config: cfg,
		logger: l,
	}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return errors.ErrConfiguration("diagnostics listen on "+s.config.Address, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("diagnostics server listening", logger.String("address", ln.Addr().String()))

		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return errors.NewServiceError("diagnostics", "serve", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = errors.NewServiceError("diagnostics", "shutdown", err)
			s.logger.Error("diagnostics server shutdown failed", logger.Error(err))

			return
		}

		s.logger.Info("diagnostics server stopped")
	})

	return shutdownErr
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}
