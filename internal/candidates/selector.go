// Package candidates finds places along a driving route: it samples the
// route, searches around each sample, keeps a fair share per route segment
// and prices each candidate by its detour.
package candidates

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/geo"
	"github.com/mohammed-shakir/route-poi-cache/internal/stations"
)

type PlaceSearcher interface {
	Search(ctx context.Context, q model.PlaceQuery) ([]model.Place, error)
}

type Router interface {
	Route(ctx context.Context, origin, dest model.Coordinate, waypoints []model.Coordinate) (model.RouteSummary, error)
}

// StationMatcher resolves places against a station dataset, aligned to the
// queries; nil entries are places without a confident match.
type StationMatcher interface {
	MatchBatch(ctx context.Context, queries []stations.MatchQuery) []*model.StationRecord
}

type Config struct {
	SearchBatchSize  int
	DetourBatchSize  int
	NumSegments      int
	PerSegment       int
	MaxDetourMinutes int
	CallTimeout      time.Duration
	Detour           DetourParams
}

func (c Config) withDefaults() Config {
	if c.SearchBatchSize <= 0 {
		c.SearchBatchSize = 4
	}
	if c.DetourBatchSize <= 0 {
		c.DetourBatchSize = 3
	}
	if c.NumSegments <= 0 {
		c.NumSegments = 5
	}
	if c.PerSegment <= 0 {
		c.PerSegment = 3
	}
	if c.MaxDetourMinutes <= 0 {
		c.MaxDetourMinutes = 15
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	c.Detour = c.Detour.withDefaults()
	return c
}

type Request struct {
	Polyline model.Polyline
	Category model.Category
	// OriginalDurationSec and OriginalDistanceM describe the route without a
	// stop. Zero duration means unknown: every detour is estimated.
	OriginalDurationSec float64
	OriginalDistanceM   float64
	MaxDetourMinutes    int
	Fuel                model.FuelProduct
}

type Result struct {
	Places          []model.Place `json:"places"`
	Params          RouteParams   `json:"params"`
	RouteKm         float64       `json:"routeKm"`
	Samples         int           `json:"samples"`
	RawCandidates   int           `json:"rawCandidates"`
	SearchErrors    int           `json:"searchErrors"`
	DetourFallbacks int           `json:"detourFallbacks"`
}

type Selector struct {
	cfg    Config
	search PlaceSearcher
	router Router
	fuel   StationMatcher
	ev     StationMatcher
	log    *slog.Logger
}

// New wires a selector. router, fuel and ev may be nil: detours are then
// estimated and no enrichment happens.
func New(cfg Config, search PlaceSearcher, router Router, fuel, ev StationMatcher, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{cfg: cfg.withDefaults(), search: search, router: router, fuel: fuel, ev: ev, log: log}
}

func (s *Selector) Select(ctx context.Context, req Request) (Result, error) {
	var res Result
	if !geo.ValidPolyline(req.Polyline) {
		return res, model.ErrInvalidRoute
	}
	spec, ok := categorySpecs[req.Category]
	if !ok {
		return res, fmt.Errorf("%w: %q", model.ErrInvalidCategory, req.Category)
	}
	if s.search == nil {
		return res, fmt.Errorf("place search: %w", model.ErrNotConfigured)
	}

	poly := req.Polyline
	res.RouteKm = geo.LengthKm(poly)
	res.Params = ParamsFor(res.RouteKm)
	samples := geo.Resample(poly, res.Params.SampleIntervalKm)
	res.Samples = len(samples)

	found, failed := s.searchAlong(ctx, spec, samples, res.Params.RadiusM)
	res.SearchErrors = failed
	res.RawCandidates = len(found)

	kept := found[:0]
	for _, p := range found {
		if spec.accept(p) {
			p.Category = req.Category
			kept = append(kept, p)
		}
	}

	picked := s.segmentFair(poly, kept)
	res.DetourFallbacks = s.fillDetours(ctx, req, picked)
	s.enrich(ctx, req, picked)

	maxDetour := req.MaxDetourMinutes
	if maxDetour <= 0 {
		maxDetour = s.cfg.MaxDetourMinutes
	}
	final := picked[:0]
	for _, p := range picked {
		if p.DetourMinutes <= maxDetour {
			final = append(final, p)
		}
	}
	SortForCategory(final, req.Category)
	res.Places = final

	s.log.DebugContext(ctx, "route candidates selected", "category", req.Category, "route_km", res.RouteKm,
		"samples", res.Samples, "raw", res.RawCandidates, "kept", len(final),
		"search_errors", res.SearchErrors, "detour_fallbacks", res.DetourFallbacks)
	return res, nil
}

type searchOutcome struct {
	places []model.Place
	err    error
}

// searchAlong queries around every sample and dedupes by place ID, keeping
// the first sighting in route order.
func (s *Selector) searchAlong(ctx context.Context, spec categorySpec, samples []model.Coordinate, radiusM int) ([]model.Place, int) {
	outcomes := inBatches(ctx, samples, s.cfg.SearchBatchSize, s.cfg.CallTimeout,
		func(ctx context.Context, at model.Coordinate) searchOutcome {
			places, err := s.search.Search(ctx, spec.query(at, radiusM))
			return searchOutcome{places: places, err: err}
		})

	seen := make(map[string]struct{})
	var out []model.Place
	failed := 0
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			s.log.WarnContext(ctx, "nearby search failed, skipping sample", "sample", i,
				"at", samples[i].String(), "err", o.err)
			continue
		}
		for _, p := range o.places {
			if _, dup := seen[p.ID]; dup || p.ID == "" {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out, failed
}

// segmentFair splits the route into NumSegments arcs of equal length and
// keeps the PerSegment closest places in each, so a dense stretch cannot
// crowd out the rest of the route. Output is ordered by segment, then by
// distance from the route.
func (s *Selector) segmentFair(poly model.Polyline, places []model.Place) []model.Place {
	cum := geo.CumulativeKm(poly)
	total := cum[len(cum)-1]
	k := s.cfg.NumSegments

	buckets := make([][]model.Place, k)
	for _, p := range places {
		idx, km := geo.NearestVertex(poly, p.Coord)
		if idx < 0 {
			continue
		}
		p.DistanceFromRoute = km * 1000
		seg := 0
		if total > 0 {
			seg = min(int(cum[idx]/(total/float64(k))), k-1)
		}
		buckets[seg] = append(buckets[seg], p)
	}

	var out []model.Place
	for _, b := range buckets {
		sort.SliceStable(b, func(i, j int) bool { return b[i].DistanceFromRoute < b[j].DistanceFromRoute })
		out = append(out, b[:min(len(b), s.cfg.PerSegment)]...)
	}
	return out
}

type detourOutcome struct {
	route model.RouteSummary
	err   error
}

// fillDetours sets detour cost on every place and returns how many fell back
// to the estimate.
func (s *Selector) fillDetours(ctx context.Context, req Request, places []model.Place) int {
	estimate := func(p *model.Place) {
		p.DetourMinutes, p.DetourDistance = s.cfg.Detour.Estimate(p.DistanceFromRoute / 1000)
		p.DetourEstimated = true
	}
	if req.OriginalDurationSec <= 0 || s.router == nil {
		for i := range places {
			estimate(&places[i])
		}
		return len(places)
	}

	origin, dest := req.Polyline[0], req.Polyline[len(req.Polyline)-1]
	outcomes := inBatches(ctx, places, s.cfg.DetourBatchSize, s.cfg.CallTimeout,
		func(ctx context.Context, p model.Place) detourOutcome {
			rs, err := s.router.Route(ctx, origin, dest, []model.Coordinate{p.Coord})
			return detourOutcome{route: rs, err: err}
		})

	fallbacks := 0
	for i := range places {
		o := outcomes[i]
		if o.err != nil || o.route.DurationSeconds <= 0 {
			fallbacks++
			s.log.WarnContext(ctx, "detour route failed, estimating", "place", places[i].ID, "err", o.err)
			estimate(&places[i])
			continue
		}
		extraSec := math.Max(0, o.route.DurationSeconds-req.OriginalDurationSec)
		places[i].DetourMinutes = int(math.Ceil(extraSec / 60))
		places[i].DetourDistance = math.Max(0, o.route.DistanceMeters-req.OriginalDistanceM)
		places[i].DetourEstimated = false
	}
	return fallbacks
}

// enrich attaches fuel prices or charger status from the station datasets.
func (s *Selector) enrich(ctx context.Context, req Request, places []model.Place) {
	var m StationMatcher
	switch req.Category {
	case model.CategoryGasStation:
		m = s.fuel
	case model.CategoryEVCharger:
		m = s.ev
	}
	if m == nil || len(places) == 0 {
		return
	}
	qs := make([]stations.MatchQuery, len(places))
	for i, p := range places {
		qs[i] = stations.MatchQuery{Name: p.Name, Coord: p.Coord}
	}
	product := req.Fuel
	if product == "" {
		product = model.FuelGasoline
	}
	for i, rec := range m.MatchBatch(ctx, qs) {
		if rec == nil {
			continue
		}
		places[i].Brand = rec.Brand
		if rec.Fuel != nil {
			if v := rec.Fuel.Price(product); v > 0 {
				places[i].Price = &v
			}
		}
		if rec.EV != nil {
			ev := *rec.EV
			places[i].Charger = &ev
		}
	}
}

// SortForCategory orders fuel stations by price (unpriced last, ties by
// detour) and everything else by detour, then distance from the route.
func SortForCategory(places []model.Place, c model.Category) {
	if c == model.CategoryGasStation {
		sort.SliceStable(places, func(i, j int) bool {
			a, b := places[i], places[j]
			switch {
			case a.Price == nil && b.Price == nil:
				return a.DetourMinutes < b.DetourMinutes
			case a.Price == nil:
				return false
			case b.Price == nil:
				return true
			case *a.Price != *b.Price:
				return *a.Price < *b.Price
			}
			return a.DetourMinutes < b.DetourMinutes
		})
		return
	}
	sort.SliceStable(places, func(i, j int) bool {
		a, b := places[i], places[j]
		if a.DetourMinutes != b.DetourMinutes {
			return a.DetourMinutes < b.DetourMinutes
		}
		return a.DistanceFromRoute < b.DistanceFromRoute
	})
}
