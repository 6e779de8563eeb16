package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/route-poi-cache/internal/app"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/config"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/server"
	"github.com/mohammed-shakir/route-poi-cache/internal/logger"
	"github.com/mohammed-shakir/route-poi-cache/internal/metrics"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is the normal case in containers
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("routepoi: .env: " + err.Error() + "\n")
	}
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "routepoi",
		Component: "main",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	opts := server.Options{Addr: cfg.Addr, Logger: log, ShutdownGrace: cfg.ShutdownGrace}
	if cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			GoRuntime: true,
			Build:     metrics.BuildInfo{Version: Version, Revision: Revision, BuildDate: BuildDate},
		})
		observability.Init(p.Registerer(), true)
		opts.Metrics = p.Handler()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		return 1
	}
	defer a.Close()

	if err := a.Initialize(ctx); err != nil {
		log.Warn("dataset warm-up incomplete", "err", err)
	}

	consumer := a.Consumer()
	if err := consumer.Start(ctx); err != nil {
		log.Error("refresh event consumer", "err", err)
		return 1
	}
	defer consumer.Close()

	opts.API = a.API()
	opts.Ready = a.Readiness()
	log.Info("starting routepoi", "addr", cfg.Addr, "version", Version,
		"redis", a.Store.Enabled(), "refresh_events", cfg.RefreshEvents.Enabled)

	code := 0
	if err := server.Run(ctx, opts); err != nil {
		log.Error("server exited with error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Warn("snapshot on shutdown failed", "err", err)
	}
	log.Info("server stopped")
	return code
}
