// Package stations owns a periodically refreshed station dataset (fuel prices
// or EV charger status): its cache tiers, its grid index and the fuzzy
// matching of map-provider places onto station records.
package stations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/kv"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/tier"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-poi-cache/internal/gridindex"
)

const (
	KindFuel = "fuel"
	KindEV   = "ev"
)

// Fetcher pulls one region from the upstream provider. On error it may still
// return the records it fetched before failing.
type Fetcher interface {
	Regions() []string
	FetchRegion(ctx context.Context, apiKey, region string) (records []model.StationRecord, apiCalls int, err error)
}

type Config struct {
	Kind               string
	TTL                time.Duration
	SnapshotDir        string
	SnapshotTTL        time.Duration
	GridPrecision      int
	PartitionPrecision int
	SearchRadiusCells  int
	MatchRadiusM       float64
	NameSimilarity     float64
	WriteBatch         int
	RefreshConcurrency int
	RefreshTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 72 * time.Hour
	}
	if c.GridPrecision <= 0 {
		c.GridPrecision = gridindex.DefaultPrecision
	}
	if c.PartitionPrecision <= 0 {
		c.PartitionPrecision = 1
	}
	if c.SearchRadiusCells <= 0 {
		c.SearchRadiusCells = 1
	}
	if c.MatchRadiusM <= 0 {
		c.MatchRadiusM = 80
	}
	if c.NameSimilarity <= 0 || c.NameSimilarity > 1 {
		c.NameSimilarity = 0.8
	}
	if c.WriteBatch <= 0 {
		c.WriteBatch = 50
	}
	if c.RefreshConcurrency <= 0 {
		c.RefreshConcurrency = 4
	}
	return c
}

type Status struct {
	HasCachedData bool   `json:"hasCachedData"`
	StationCount  int    `json:"stationCount"`
	AgeMinutes    int    `json:"ageMinutes"`
	Tier          string `json:"tier,omitempty"`
}

type GridStats struct {
	CellCount   int `json:"cellCount"`
	RecordCount int `json:"recordCount"`
}

// view pairs the grid with the dataset version it was built from.
type view struct {
	fetchedAt time.Time
	grid      *gridindex.Index
}

// Service is one station dataset. Construct with New, call Initialize once,
// Refresh on a schedule and Shutdown on exit.
type Service struct {
	cfg     Config
	fetcher Fetcher
	kv      *kv.Store
	log     *slog.Logger

	mem    *tier.Memory[[]model.StationRecord]
	remote *redisTier
	snap   *tier.Snapshot[[]model.StationRecord]
	chain  *tier.Chain[[]model.StationRecord]

	cur       atomic.Pointer[view]
	refreshMu sync.Mutex
	cursor    atomic.Int64
	listeners []func(context.Context, RefreshResult)
	now       func() time.Time
}

func New(cfg Config, fetcher Fetcher, store *kv.Store, log *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	log = log.With("dataset", cfg.Kind)
	if store == nil {
		store = kv.New(nil, log)
	}

	s := &Service{
		cfg:     cfg,
		fetcher: fetcher,
		kv:      store,
		log:     log,
		mem:     tier.NewMemory[[]model.StationRecord](),
		remote:  &redisTier{kind: cfg.Kind, kv: store, precision: cfg.PartitionPrecision, writeBatch: cfg.WriteBatch},
		now:     time.Now,
	}
	snapPath := ""
	if cfg.SnapshotDir != "" {
		snapPath = filepath.Join(cfg.SnapshotDir, cfg.Kind+"-stations.json")
	}
	s.snap = tier.NewSnapshot[[]model.StationRecord](snapPath, cfg.SnapshotTTL)
	s.chain = tier.NewChain[[]model.StationRecord](cfg.Kind, log, s.mem, s.remote, s.snap).
		WithClock(func() time.Time { return s.now() })
	return s
}

func (s *Service) Kind() string { return s.cfg.Kind }

// OnRefresh registers fn to run after every committed refresh.
func (s *Service) OnRefresh(fn func(context.Context, RefreshResult)) {
	s.listeners = append(s.listeners, fn)
}

// Initialize warms the memory tier and grid from whichever tier has data.
// Finding nothing is not an error.
func (s *Service) Initialize(ctx context.Context) error {
	if _, ok := s.index(ctx); ok {
		st := s.Status(ctx)
		s.log.InfoContext(ctx, "station dataset warmed", "tier", st.Tier, "stations", st.StationCount,
			"age_min", st.AgeMinutes)
		return nil
	}
	s.log.InfoContext(ctx, "no cached station data at startup")
	return nil
}

// Shutdown persists the memory tier to the snapshot file.
func (s *Service) Shutdown(ctx context.Context) error {
	e, ok, _ := s.mem.Load(ctx)
	if !ok || !e.Valid(s.now()) {
		return nil
	}
	if err := s.snap.Store(ctx, e); err != nil {
		return fmt.Errorf("persist %s snapshot: %w", s.cfg.Kind, err)
	}
	s.log.InfoContext(ctx, "station snapshot written", "kind", s.cfg.Kind, "path", s.snap.Path(), "records", len(e.Data))
	return nil
}

// index returns the grid for the first valid tier, rebuilding it when the
// serving dataset changed since the last build.
func (s *Service) index(ctx context.Context) (*gridindex.Index, bool) {
	e, _, ok := s.chain.Get(ctx)
	if !ok {
		return nil, false
	}
	if v := s.cur.Load(); v != nil && v.fetchedAt.Equal(e.FetchedAt) {
		return v.grid, true
	}
	return s.swap(e), true
}

func (s *Service) swap(e tier.Entry[[]model.StationRecord]) *gridindex.Index {
	ix := gridindex.Build(e.Data, s.cfg.GridPrecision)
	s.cur.Store(&view{fetchedAt: e.FetchedAt, grid: ix})
	observability.SetDatasetRecords(s.cfg.Kind, ix.RecordCount())
	return ix
}

// Status has no side effects: no backfill, no grid rebuild.
func (s *Service) Status(ctx context.Context) Status {
	e, from, ok := s.chain.Peek(ctx)
	if !ok {
		return Status{}
	}
	return Status{
		HasCachedData: true,
		StationCount:  len(e.Data),
		AgeMinutes:    int(e.Age(s.now()).Minutes()),
		Tier:          from,
	}
}

// Records returns the full dataset currently served, or nil.
func (s *Service) Records(ctx context.Context) []model.StationRecord {
	ix, ok := s.index(ctx)
	if !ok {
		return nil
	}
	return ix.Records()
}

type NearbyStation struct {
	model.StationRecord
	DistanceM float64 `json:"distanceM"`
}

// Nearby returns stations within radiusM of at, nearest first.
func (s *Service) Nearby(ctx context.Context, at model.Coordinate, radiusM float64) []NearbyStation {
	ix, ok := s.index(ctx)
	if !ok {
		return nil
	}
	hits := ix.Within(at, radiusM/1000)
	out := make([]NearbyStation, len(hits))
	for i, h := range hits {
		out[i] = NearbyStation{StationRecord: h.Record, DistanceM: h.DistanceKm * 1000}
	}
	return out
}

func (s *Service) matcher() matcher {
	return matcher{
		radiusKm:     s.cfg.MatchRadiusM / 1000,
		threshold:    s.cfg.NameSimilarity,
		searchRadius: s.cfg.SearchRadiusCells,
	}
}

// Match resolves a map-provider place to a station record. nil means no
// confident match, which is an expected outcome.
func (s *Service) Match(ctx context.Context, name string, at model.Coordinate) *model.StationRecord {
	ix, ok := s.index(ctx)
	if !ok {
		return nil
	}
	return s.matcher().match(ix, name, at)
}

type MatchQuery struct {
	Name  string           `json:"name"`
	Coord model.Coordinate `json:"coordinates"`
}

// MatchBatch answers every query against one read of the dataset. The result
// is aligned to queries.
func (s *Service) MatchBatch(ctx context.Context, queries []MatchQuery) []*model.StationRecord {
	out := make([]*model.StationRecord, len(queries))
	if len(queries) == 0 {
		return out
	}
	ix, ok := s.index(ctx)
	if !ok {
		return out
	}
	m := s.matcher()
	for i, q := range queries {
		out[i] = m.match(ix, q.Name, q.Coord)
	}
	return out
}

// BuildGridFromRedis re-indexes from the distributed tier alone. No upstream
// call is made; the memory tier is replaced with what Redis holds.
func (s *Service) BuildGridFromRedis(ctx context.Context) (GridStats, error) {
	e, ok, err := s.remote.Load(ctx)
	if err != nil {
		return GridStats{}, fmt.Errorf("load %s from redis: %w", s.cfg.Kind, err)
	}
	if !ok || !e.Valid(s.now()) {
		return GridStats{}, fmt.Errorf("%s: %w", s.cfg.Kind, model.ErrNoData)
	}
	_ = s.mem.Store(ctx, e)
	ix := s.swap(e)
	s.log.InfoContext(ctx, "grid rebuilt from redis", "cells", ix.CellCount(), "records", ix.RecordCount())
	return GridStats{CellCount: ix.CellCount(), RecordCount: ix.RecordCount()}, nil
}

// ErrorCount reports this hour's refresh failures.
func (s *Service) ErrorCount(ctx context.Context) int64 {
	return s.kv.ErrorCount(ctx, s.errorCategory())
}

func (s *Service) errorCategory() string { return s.cfg.Kind + ":refresh" }
