package stations

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/tier"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
)

type RefreshResult struct {
	Kind          string        `json:"kind"`
	TotalRecords  int           `json:"totalRecords"`
	APICalls      int           `json:"apiCalls"`
	Errors        int           `json:"errors"`
	Regions       []string      `json:"regions"`
	FailedRegions []string      `json:"failedRegions,omitempty"`
	Committed     bool          `json:"committed"`
	NextCursor    int           `json:"nextCursor,omitempty"`
	Duration      time.Duration `json:"duration"`
}

type regionResult struct {
	region  string
	records []model.StationRecord
	calls   int
	err     error
}

// Refresh fetches regions (all regions when empty), merges them into the
// current dataset and commits the merged set to every tier. A failed region
// keeps its previous records; whatever it fetched before failing is upserted
// by ExternalID.
func (s *Service) Refresh(ctx context.Context, apiKey string, regions []string) (RefreshResult, error) {
	res := RefreshResult{Kind: s.cfg.Kind}
	if apiKey == "" {
		return res, fmt.Errorf("%s refresh: %w", s.cfg.Kind, model.ErrNotConfigured)
	}
	if s.fetcher == nil {
		return res, fmt.Errorf("%s refresh: no upstream fetcher: %w", s.cfg.Kind, model.ErrNotConfigured)
	}
	if len(regions) == 0 {
		regions = s.fetcher.Regions()
	}
	res.Regions = regions

	// upstream fetches can take minutes; a second caller fails fast instead of
	// queueing a duplicate sweep behind the first
	if !s.refreshMu.TryLock() {
		return res, fmt.Errorf("%s refresh: %w", s.cfg.Kind, model.ErrRefreshRunning)
	}
	defer s.refreshMu.Unlock()

	start := s.now()
	results := s.fetchAll(ctx, apiKey, regions)

	prev, _, _ := s.chain.Get(ctx)
	merged, fetched := mergeRegions(prev.Data, results)
	for _, r := range results {
		res.APICalls += r.calls
		observability.ObserveRefreshRegion(s.cfg.Kind, r.err)
		if r.err != nil {
			res.Errors++
			res.FailedRegions = append(res.FailedRegions, r.region)
			s.kv.IncrementErrorCount(ctx, s.errorCategory())
			s.log.WarnContext(ctx, "region refresh failed", "region", r.region,
				"partial_records", len(r.records), "err", r.err)
		}
	}
	res.TotalRecords = len(merged)

	// nothing new arrived: re-committing would only fake freshness
	if fetched == 0 {
		res.Duration = s.now().Sub(start)
		s.log.WarnContext(ctx, "refresh fetched no records, keeping current dataset",
			"regions", len(regions), "errors", res.Errors)
		return res, nil
	}

	e := tier.Entry[[]model.StationRecord]{Data: merged, FetchedAt: s.now(), TTL: s.cfg.TTL}
	if err := s.chain.Put(ctx, e); err != nil {
		s.log.WarnContext(ctx, "refresh committed with tier write failures", "err", err)
	}
	s.swap(e)
	res.Committed = true
	res.Duration = s.now().Sub(start)

	s.log.InfoContext(ctx, "station refresh committed", "records", res.TotalRecords,
		"api_calls", res.APICalls, "errors", res.Errors, "duration", res.Duration.String())
	for _, fn := range s.listeners {
		fn(ctx, res)
	}
	return res, nil
}

// fetchAll walks regions in batches of RefreshConcurrency, waiting for each
// batch before starting the next.
func (s *Service) fetchAll(ctx context.Context, apiKey string, regions []string) []regionResult {
	out := make([]regionResult, len(regions))
	step := s.cfg.RefreshConcurrency
	for lo := 0; lo < len(regions); lo += step {
		hi := min(lo+step, len(regions))
		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				rctx, cancel := ctx, context.CancelFunc(func() {})
				if s.cfg.RefreshTimeout > 0 {
					rctx, cancel = context.WithTimeout(ctx, s.cfg.RefreshTimeout)
				}
				defer cancel()
				recs, calls, err := s.fetcher.FetchRegion(rctx, apiKey, regions[i])
				for j := range recs {
					if recs[j].Region == "" {
						recs[j].Region = regions[i]
					}
				}
				out[i] = regionResult{region: regions[i], records: recs, calls: calls, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

// mergeRegions returns the merged dataset ordered by ExternalID and how many
// records the fetch contributed.
func mergeRegions(prev []model.StationRecord, results []regionResult) ([]model.StationRecord, int) {
	byID := make(map[string]model.StationRecord, len(prev))
	for _, r := range prev {
		byID[r.ExternalID] = r
	}

	fetched := 0
	for _, rr := range results {
		if rr.err == nil {
			for id, r := range byID {
				if r.Region == rr.region {
					delete(byID, id)
				}
			}
		}
		for _, r := range rr.records {
			byID[r.ExternalID] = r
		}
		fetched += len(rr.records)
	}

	out := make([]model.StationRecord, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, fetched
}

// RefreshNextBatch refreshes the next n regions after the stored cursor and
// advances it, wrapping at the end. The cursor lives in Redis so separate
// time-boxed invocations make progress together; without Redis it is kept
// in process.
func (s *Service) RefreshNextBatch(ctx context.Context, apiKey string, n int) (RefreshResult, error) {
	if s.fetcher == nil {
		return RefreshResult{Kind: s.cfg.Kind}, fmt.Errorf("%s refresh: no upstream fetcher: %w", s.cfg.Kind, model.ErrNotConfigured)
	}
	all := s.fetcher.Regions()
	if len(all) == 0 {
		return RefreshResult{Kind: s.cfg.Kind}, nil
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}

	start := s.loadCursor(ctx) % len(all)
	batch := make([]string, 0, n)
	for i := range n {
		batch = append(batch, all[(start+i)%len(all)])
	}

	res, err := s.Refresh(ctx, apiKey, batch)
	if err != nil {
		return res, err
	}
	next := (start + n) % len(all)
	s.storeCursor(ctx, next)
	res.NextCursor = next
	return res, nil
}

func (s *Service) loadCursor(ctx context.Context) int {
	if b, ok := s.kv.Get(ctx, keys.RefreshCursor(s.cfg.Kind)); ok {
		if v, err := strconv.Atoi(string(b)); err == nil && v >= 0 {
			return v
		}
	}
	return int(s.cursor.Load())
}

func (s *Service) storeCursor(ctx context.Context, v int) {
	s.cursor.Store(int64(v))
	s.kv.Set(ctx, keys.RefreshCursor(s.cfg.Kind), []byte(strconv.Itoa(v)), 0)
}
