// Package app assembles the service from configuration. Both binaries build
// the same graph; only what they do with it differs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/kv"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/route-poi-cache/internal/candidates"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/config"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/health"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/router"
	"github.com/mohammed-shakir/route-poi-cache/internal/placecache"
	"github.com/mohammed-shakir/route-poi-cache/internal/ranker"
	"github.com/mohammed-shakir/route-poi-cache/internal/refreshevents"
	"github.com/mohammed-shakir/route-poi-cache/internal/stations"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream/evcharger"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream/kakaolocal"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream/kakaonavi"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream/opinet"
)

type App struct {
	Cfg   config.Config
	Log   *slog.Logger
	Redis *redisstore.Client
	Store *kv.Store

	Fuel     *stations.Service
	EV       *stations.Service
	Selector *candidates.Selector
	Ranker   *ranker.Ranker
	Routes   candidates.Router

	Publisher *refreshevents.Publisher
}

// Build connects Redis and the upstream clients. A missing credential or an
// unreachable Redis is logged and leaves that piece out; nothing here is fatal
// except a broken Kafka producer the operator explicitly enabled.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	if cfg.Redis.Addr != "" {
		cli, err := redisstore.New(ctx, cfg.Redis.Addr,
			redisstore.WithPassword(cfg.Redis.Password),
			redisstore.WithDB(cfg.Redis.DB),
			redisstore.WithPoolSize(cfg.Redis.PoolSize),
			redisstore.WithReadTimeout(cfg.Redis.IOTimeout),
			redisstore.WithWriteTimeout(cfg.Redis.IOTimeout))
		if err != nil {
			log.Warn("redis unavailable, distributed tier disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			a.Redis = cli
		}
	}
	a.Store = kv.FromClient(a.Redis, log.With("component", "kv"), kv.WithOpTimeout(cfg.Redis.OpTimeout))

	hc := httpclient.NewOutbound(cfg.Upstream.Timeout)
	a.Fuel = stations.New(stationConfig(cfg, stations.KindFuel), optional(log, "opinet", func() (stations.Fetcher, error) {
		return opinet.New(hc, cfg.Upstream.OpinetURL)
	}), a.Store, log.With("component", "stations"))
	a.EV = stations.New(stationConfig(cfg, stations.KindEV), optional(log, "ev_charger", func() (stations.Fetcher, error) {
		return evcharger.New(hc, cfg.Upstream.EVURL)
	}), a.Store, log.With("component", "stations"))

	search := optional(log, "kakao_local", func() (candidates.PlaceSearcher, error) {
		local, err := kakaolocal.New(hc, cfg.Upstream.KakaoLocalURL, cfg.Upstream.KakaoRestKey)
		if err != nil {
			return nil, err
		}
		return placecache.New(local, a.Store, log.With("component", "placecache"), placecache.Config{
			Res: cfg.PlaceCache.H3Res, TTL: cfg.PlaceCache.TTL, Size: cfg.PlaceCache.Size,
		}), nil
	})
	a.Routes = optional(log, "kakao_navi", func() (candidates.Router, error) {
		return kakaonavi.New(hc, cfg.Upstream.KakaoNaviURL, cfg.Upstream.KakaoRestKey,
			kakaonavi.WithMemo(cfg.Upstream.RouteMemoSize, cfg.Upstream.RouteMemoTTL))
	})

	sc := cfg.Selector
	a.Selector = candidates.New(candidates.Config{
		SearchBatchSize:  sc.SearchBatch,
		DetourBatchSize:  sc.DetourBatch,
		NumSegments:      sc.Segments,
		PerSegment:       sc.PerSegment,
		MaxDetourMinutes: sc.MaxDetourMinutes,
		CallTimeout:      cfg.Upstream.Timeout,
		Detour:           candidates.DetourParams{RoadFactor: sc.RoadFactor, SpeedKmh: sc.SpeedKmh, OverheadMin: sc.OverheadMin},
	}, search, a.Routes, a.Fuel, a.EV, log.With("component", "candidates"))
	a.Ranker = ranker.New(ranker.DefaultWeights())

	if cfg.RefreshEvents.Enabled {
		pub, err := refreshevents.NewPublisher(eventsConfig(cfg), log.With("component", "refreshevents"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = pub
		a.Fuel.OnRefresh(pub.Listener())
		a.EV.OnRefresh(pub.Listener())
	}
	return a, nil
}

// optional builds a dependency, logging and returning the zero value when its
// configuration is missing. The zero value of an interface is a real nil, so
// consumers can test it.
func optional[T any](log *slog.Logger, name string, build func() (T, error)) T {
	v, err := build()
	if err != nil {
		var zero T
		if errors.Is(err, model.ErrNotConfigured) {
			log.Warn("upstream not configured", "upstream", name)
		} else {
			log.Error("upstream setup failed", "upstream", name, "err", err)
		}
		return zero
	}
	return v
}

func stationConfig(cfg config.Config, kind string) stations.Config {
	sc := cfg.Stations
	return stations.Config{
		Kind:               kind,
		TTL:                sc.TTL,
		SnapshotDir:        sc.SnapshotDir,
		SnapshotTTL:        sc.SnapshotTTL,
		GridPrecision:      sc.GridPrecision,
		PartitionPrecision: sc.PartitionPrecision,
		SearchRadiusCells:  sc.SearchRadiusCells,
		MatchRadiusM:       sc.MatchRadiusM,
		NameSimilarity:     sc.NameSimilarity,
		WriteBatch:         cfg.Redis.WriteBatch,
		RefreshConcurrency: sc.RefreshConcurrency,
		RefreshTimeout:     sc.RefreshTimeout,
	}
}

func eventsConfig(cfg config.Config) refreshevents.Config {
	ec := cfg.RefreshEvents
	return refreshevents.Config{
		Enabled:          ec.Enabled,
		Brokers:          ec.Brokers,
		Topic:            ec.Topic,
		GroupID:          ec.GroupID,
		InstanceID:       ec.InstanceID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
	}
}

// Initialize warms both datasets from whichever tier holds them.
func (a *App) Initialize(ctx context.Context) error {
	return errors.Join(a.Fuel.Initialize(ctx), a.EV.Initialize(ctx))
}

// Consumer returns the refresh event consumer for this instance; it is
// disabled unless refresh events are enabled.
func (a *App) Consumer() *refreshevents.Consumer {
	return refreshevents.NewConsumer(eventsConfig(a.Cfg), a.Log.With("component", "refreshevents"), a.Fuel, a.EV)
}

func (a *App) API() *router.API {
	return router.New(a.Log.With("component", "api"), a.Selector, a.Routes, a.Ranker, a.Cfg.Stations.RefreshToken,
		router.Station{Service: a.Fuel, APIKey: a.Cfg.Upstream.OpinetKey},
		router.Station{Service: a.EV, APIKey: a.Cfg.Upstream.EVKey},
	)
}

// Readiness requires Redis only when it was configured. Empty datasets
// degrade the report without failing it.
func (a *App) Readiness() http.HandlerFunc {
	var checks []health.Check
	if a.Cfg.Redis.Addr != "" {
		checks = append(checks, health.Check{Name: "redis", Required: true, Probe: func(ctx context.Context) error {
			if a.Redis == nil {
				return errors.New("not connected")
			}
			return a.Redis.Ping(ctx)
		}})
	}
	for _, s := range []*stations.Service{a.Fuel, a.EV} {
		checks = append(checks, health.Check{Name: s.Kind(), Probe: func(ctx context.Context) error {
			if !s.Status(ctx).HasCachedData {
				return fmt.Errorf("%s: %w", s.Kind(), model.ErrNoData)
			}
			return nil
		}})
	}
	return health.Readiness(2*time.Second, checks...)
}

// Shutdown persists both datasets to their snapshot files.
func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(a.Fuel.Shutdown(ctx), a.EV.Shutdown(ctx))
}

func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Log.Warn("close refresh publisher", "err", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("close redis", "err", err)
		}
	}
}
