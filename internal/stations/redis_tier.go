package stations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/kv"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/tier"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/gridindex"
)

// partitions outlive the manifest so a reader holding a manifest never finds
// its partitions already expired
const partitionGrace = time.Hour

var errIncompleteWrite = errors.New("partition write incomplete, manifest not swapped")

type manifest struct {
	Version   int64         `json:"version"`
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"ttl"`
	Cells     []string      `json:"cells"`
	Count     int           `json:"count"`
}

// redisTier stores a dataset as versioned partitions, one key per coarse
// cell, plus a manifest naming the live version. Partitions are written
// first and the manifest last, so readers see a whole old or new dataset.
type redisTier struct {
	kind       string
	kv         *kv.Store
	precision  int
	writeBatch int
}

func (t *redisTier) Name() string { return "redis" }

func (t *redisTier) Load(ctx context.Context) (tier.Entry[[]model.StationRecord], bool, error) {
	var e tier.Entry[[]model.StationRecord]
	if !t.kv.Enabled() {
		return e, false, nil
	}
	raw, ok := t.kv.Get(ctx, keys.StationManifest(t.kind))
	if !ok {
		return e, false, nil
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return e, false, fmt.Errorf("decode manifest: %w", err)
	}

	ks := make([]string, len(m.Cells))
	for i, c := range m.Cells {
		ks[i] = keys.StationPartition(t.kind, m.Version, c)
	}
	vals := t.kv.MGet(ctx, ks)

	records := make([]model.StationRecord, 0, m.Count)
	for i, v := range vals {
		if v == nil {
			return e, false, fmt.Errorf("partition %s missing for version %d", m.Cells[i], m.Version)
		}
		var part []model.StationRecord
		if err := json.Unmarshal(v, &part); err != nil {
			return e, false, fmt.Errorf("decode partition %s: %w", m.Cells[i], err)
		}
		records = append(records, part...)
	}
	return tier.Entry[[]model.StationRecord]{Data: records, FetchedAt: m.FetchedAt, TTL: m.TTL}, true, nil
}

func (t *redisTier) Store(ctx context.Context, e tier.Entry[[]model.StationRecord]) error {
	if !t.kv.Enabled() {
		return nil
	}
	parts := gridindex.Partition(e.Data, t.precision)
	cells := make([]string, 0, len(parts))
	for c := range parts {
		cells = append(cells, c)
	}
	sort.Strings(cells)

	version := e.FetchedAt.UnixNano()
	entries := make([]redisstore.KV, 0, len(cells))
	for _, c := range cells {
		b, err := json.Marshal(parts[c])
		if err != nil {
			return fmt.Errorf("encode partition %s: %w", c, err)
		}
		entries = append(entries, redisstore.KV{Key: keys.StationPartition(t.kind, version, c), Val: b})
	}

	if n := t.kv.BulkSet(ctx, entries, t.writeBatch, e.TTL+partitionGrace); n != len(entries) {
		return fmt.Errorf("%w: %d/%d written", errIncompleteWrite, n, len(entries))
	}

	mb, err := json.Marshal(manifest{
		Version: version, FetchedAt: e.FetchedAt, TTL: e.TTL, Cells: cells, Count: len(e.Data),
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if !t.kv.Set(ctx, keys.StationManifest(t.kind), mb, e.TTL) {
		return errors.New("manifest write failed")
	}
	return nil
}
