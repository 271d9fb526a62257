package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/config"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/health"
	middleware "github.com/mohammed-shakir/h3-delivery-eta/internal/core/middleware"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/router"
)

type Options struct {
	Handlers *router.Handlers
	// Checks feed /readyz; the graph store ping belongs here.
	Checks map[string]health.Check
	// Consumer is nil when the commit consumer is disabled.
	Consumer health.ReadinessReporter
	// Metrics defaults to the global promhttp handler.
	Metrics http.Handler
}

func NewRouter(logger *slog.Logger, opts Options) http.Handler {
	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.Checks, opts.Consumer, 2*time.Second))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	h := opts.Handlers
	r.Get("/", h.Root)
	r.Post("/predict/", h.Predict)
	r.Post("/update/", h.Update)
	r.Post("/resolve-and-commit/", h.ResolveAndCommit)
	r.Get("/edges/{source}/{destination}", h.GetEdge)
	return r
}

// serves the API until ctx is done, then drains in-flight requests
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(logger, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
