package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/route-poi-cache/internal/core/middleware"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/router"
)

type Options struct {
	Addr   string
	Logger *slog.Logger
	API    *router.API
	// Ready answers /readyz; nil reports ready unconditionally.
	Ready http.HandlerFunc
	// Metrics is mounted on /metrics when set.
	Metrics       http.Handler
	ShutdownGrace time.Duration
}

func NewHandler(o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(o.Logger))
	r.Use(middleware.Logging(o.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if o.Ready != nil {
		r.Get("/readyz", o.Ready)
	} else {
		r.Get("/readyz", health.Readiness(time.Second))
	}
	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics)
	}
	if o.API != nil {
		o.API.Mount(r)
	}
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, o Options) error {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              o.Addr,
		Handler:           NewHandler(o),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a long-route recommendation fans out dozens of upstream calls
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		o.Logger.Info("http listen", "addr", o.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), o.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			o.Logger.Warn("http shutdown", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
