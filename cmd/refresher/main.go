// Command refresher runs one time-boxed refresh batch per dataset and exits.
// It is meant for a scheduler: each run advances the shared region cursor, so
// consecutive runs walk every region.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/route-poi-cache/internal/app"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/config"
	"github.com/mohammed-shakir/route-poi-cache/internal/logger"
	"github.com/mohammed-shakir/route-poi-cache/internal/stations"
)

func main() {
	os.Exit(run())
}

func run() int {
	kinds := flag.String("kinds", "fuel,ev", "comma-separated datasets to refresh")
	budget := flag.Duration("budget", 55*time.Second, "wall-clock budget for the whole run")
	batch := flag.Int("regions", 0, "regions per dataset this run (0 uses REFRESH_BATCH_REGIONS)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("refresher: .env: " + err.Error() + "\n")
	}
	cfg := config.FromEnv()
	if *batch > 0 {
		cfg.Stations.RefreshBatch = *batch
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Service:   "refresher",
		Component: "main",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *budget)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		return 1
	}
	defer a.Close()

	targets := map[string]struct {
		svc *stations.Service
		key string
	}{
		stations.KindFuel: {a.Fuel, cfg.Upstream.OpinetKey},
		stations.KindEV:   {a.EV, cfg.Upstream.EVKey},
	}

	var g errgroup.Group
	failed := false
	for kind := range strings.SplitSeq(*kinds, ",") {
		kind = strings.TrimSpace(kind)
		t, ok := targets[kind]
		if !ok {
			log.Error("unknown dataset", "kind", kind)
			failed = true
			continue
		}
		g.Go(func() error {
			ctx := logger.WithDataset(ctx, kind)
			res, err := t.svc.RefreshNextBatch(ctx, t.key, cfg.Stations.RefreshBatch)
			if err != nil {
				log.ErrorContext(ctx, "refresh batch failed", "err", err)
				return err
			}
			log.InfoContext(ctx, "refresh batch done", "regions", res.Regions, "committed", res.Committed,
				"records", res.TotalRecords, "api_calls", res.APICalls, "errors", res.Errors,
				"next_cursor", res.NextCursor, "took", res.Duration)
			return nil
		})
	}
	if err := g.Wait(); err != nil || failed {
		return 1
	}
	return 0
}
