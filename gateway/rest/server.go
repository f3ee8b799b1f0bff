package rest

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/botapi/errors"
)

// ServerConfig configures the API HTTP server.
type ServerConfig struct {
	Address         string
	AllowedOrigins  []string
	MaxRequestBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Validate checks the server configuration.
func (c ServerConfig) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Validate",
			"address cannot be empty")
	}
	return nil
}

// Server hosts the REST routes plus any extra handlers mounted on it,
// such as the GraphQL endpoint and the health check.
type Server struct {
	config     ServerConfig
	handler    *Handler
	logger     *slog.Logger
	mux        *http.ServeMux
	httpServer *http.Server

	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates the API server around the REST handler.
func NewServer(config ServerConfig, handler *Handler, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "NewServer", "handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:   config,
		handler:  handler,
		logger:   logger,
		mux:      http.NewServeMux(),
		stopChan: make(chan struct{}),
	}, nil
}

// Mount attaches an extra handler at the given pattern. Must be called
// before Setup.
func (s *Server) Mount(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Setup registers the REST routes and builds the HTTP server.
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handler.RegisterRoutes(s.mux)

	wrapped := requestMiddleware(s.mux, MiddlewareConfig{
		AllowedOrigins:  s.config.AllowedOrigins,
		MaxRequestBytes: s.config.MaxRequestBytes,
		Metrics:         s.handler.metrics,
		Logger:          s.logger,
	})

	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      wrapped,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server configured", "address", s.config.Address)
	return nil
}

// HTTPHandler returns the composed handler after Setup. It is nil
// before Setup is called.
func (s *Server) HTTPHandler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

// Start runs the HTTP server until the context is cancelled or Stop is
// called. The ready channel is closed when the server starts listening.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start",
			"server already running")
	}
	if s.httpServer == nil {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrNotStarted, "Server", "Start", "Setup not called")
	}
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("API server starting", "address", s.config.Address)

		// ListenAndServe blocks after binding the socket, signal ready
		// immediately before the call.
		if ready != nil {
			close(ready)
		}

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server context cancelled, shutting down")
		return s.Stop(10 * time.Second)
	case <-s.stopChan:
		return nil
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	server := s.httpServer
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown")
	}
	s.logger.Info("API server stopped")
	return nil
}
