package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Algorithm-App/eval-med-app/internal/config"
	"github.com/Algorithm-App/eval-med-app/pkg/lifecycle"
)

type httpServer struct {
	http            *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func newHTTPServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *httpServer {
	s := &httpServer{
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeoutDuration(),
			ReadTimeout:       cfg.Server.ReadTimeoutDuration(),
			WriteTimeout:      cfg.Server.WriteTimeoutDuration(),
		},
		logger:          logger.With("system", "http"),
		shutdownTimeout: cfg.Server.ShutdownTimeoutDuration(),
	}

	// an audio submission makes a transcription call then an evaluation call
	if budget := cfg.Agent.EvaluationTimeoutDuration(); s.http.WriteTimeout < budget {
		s.logger.Warn(
			"write timeout shorter than agent round trip",
			"write_timeout", s.http.WriteTimeout,
			"agent_budget", budget,
		)
	}

	return s
}

// Start binds the listen address before returning so port conflicts fail startup.
func (s *httpServer) Start(lc *lifecycle.Coordinator) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}

	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
			return
		}
		s.logger.Info("server shutdown complete")
	})

	return nil
}
