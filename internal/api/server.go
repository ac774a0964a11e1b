package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/logger"
)

const (
	readTimeout = 15 * time.Second
	// headroom for store reads, assessment and encoding on top of upstream waits
	responseSlack = 15 * time.Second
)

// Server represents the HTTP API server
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates a new API server. The write timeout covers the slowest handler:
// a routed request waits at most the live timeout, a collect request runs
// ceil(symbols/workers) brokerage calls back to back.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	write := WriteTimeout(cfg)
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: write,
			IdleTimeout:  write,
		},
		logger: log.Module("api"),
		config: cfg,
	}
}

// WriteTimeout derives the response deadline from routing and collection settings
func WriteTimeout(cfg *config.Config) time.Duration {
	workers := cfg.Collector.Workers
	if workers < 1 {
		workers = 1
	}
	rounds := (len(cfg.Collector.Symbols) + workers - 1) / workers
	collect := time.Duration(rounds) * cfg.Schwab.Timeout

	upstream := cfg.Router.LiveTimeout
	if collect > upstream {
		upstream = collect
	}
	return upstream + responseSlack
}

// ShutdownGrace is how long in-flight requests get to finish on shutdown
func (s *Server) ShutdownGrace() time.Duration {
	return s.httpServer.WriteTimeout
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port":          s.config.Port,
		"env":           s.config.Env,
		"write_timeout": s.httpServer.WriteTimeout.String(),
	}).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
