// Package server exposes the Loreweave HTTP API: the interactive chat
// endpoint, session close, health probes, and the Prometheus scrape
// endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberforge/loreweave/internal/auth"
	"github.com/emberforge/loreweave/internal/health"
	"github.com/emberforge/loreweave/internal/observe"
	"github.com/emberforge/loreweave/internal/session"
)

// shutdownTimeout bounds the drain of in-flight requests during Stop.
const shutdownTimeout = 15 * time.Second

// Config holds the server's network settings.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080").
	ListenAddr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// Server is the Loreweave HTTP server. Create with [New], start with
// [Server.Run], stop by cancelling the context passed to Run.
type Server struct {
	cfg          Config
	orchestrator *session.Orchestrator
	verifier     *auth.Verifier
	health       *health.Handler
	metrics      *observe.Metrics

	httpServer *http.Server
}

// New assembles a [Server]. orchestrator and verifier must be non-nil;
// healthHandler may be nil to disable the probe endpoints.
func New(cfg Config, orchestrator *session.Orchestrator, verifier *auth.Verifier, healthHandler *health.Handler, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		verifier:     verifier,
		health:       healthHandler,
		metrics:      metrics,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the full handler chain. Authenticated game endpoints sit
// behind the JWT middleware; probes and metrics do not.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /chat", s.verifier.Middleware(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /end-session", s.verifier.Middleware(http.HandlerFunc(s.handleEndSession)))

	if s.health != nil {
		s.health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Run starts serving and blocks until ctx is cancelled or the listener
// fails. On cancellation it drains in-flight requests before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("http server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.CertFile != "")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
