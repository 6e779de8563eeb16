// Package placecache memoises nearby-place searches per H3 cell, first in an
// in-process expirable LRU and then in Redis. A miss queries the provider
// from the cell centre so the cached page is valid for the whole cell.
package placecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/kv"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-poi-cache/internal/mapper"
	h3mapper "github.com/mohammed-shakir/route-poi-cache/internal/mapper/h3"
)

type Searcher interface {
	Search(ctx context.Context, q model.PlaceQuery) ([]model.Place, error)
}

type Config struct {
	Res  int
	TTL  time.Duration
	Size int
}

type Cache struct {
	next Searcher
	kv   *kv.Store
	lru  *expirable.LRU[string, []model.Place]
	mapr mapper.Interface
	res  int
	ttl  time.Duration
	log  *slog.Logger
}

func New(next Searcher, store *kv.Store, log *slog.Logger, cfg Config) *Cache {
	if cfg.Res <= 0 {
		cfg.Res = 9
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.Size <= 0 {
		cfg.Size = 4096
	}
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		store = kv.New(nil, log)
	}
	return &Cache{
		next: next,
		kv:   store,
		lru:  expirable.NewLRU[string, []model.Place](cfg.Size, nil, cfg.TTL),
		mapr: h3mapper.New(),
		res:  cfg.Res,
		ttl:  cfg.TTL,
		log:  log,
	}
}

func filters(q model.PlaceQuery) string {
	return fmt.Sprintf("r=%d kw=%s code=%s page=%d", q.RadiusM, q.Keyword, q.CategoryCode, max(q.Page, 1))
}

func (c *Cache) Search(ctx context.Context, q model.PlaceQuery) ([]model.Place, error) {
	cell, err := c.mapr.CellFor(q.Center, c.res)
	if err != nil {
		c.log.DebugContext(ctx, "place cache bypassed", "err", err)
		return c.next.Search(ctx, q)
	}
	ns := q.CategoryCode
	if ns == "" {
		ns = "kw"
	}
	key := keys.PlaceSearch(ns, c.res, cell, filters(q))

	if places, ok := c.lru.Get(key); ok {
		observability.AddCacheHits(1)
		return clone(places), nil
	}
	if raw, ok := c.kv.Get(ctx, key); ok {
		var places []model.Place
		if err := json.Unmarshal(raw, &places); err == nil {
			observability.AddCacheHits(1)
			c.lru.Add(key, places)
			return clone(places), nil
		}
		c.log.WarnContext(ctx, "corrupt place cache entry", "key", key)
	}
	observability.AddCacheMisses(1)

	center, err := c.mapr.Center(cell)
	if err != nil {
		center = q.Center
	}
	cq := q
	cq.Center = center
	places, err := c.next.Search(ctx, cq)
	if err != nil {
		return nil, err
	}

	c.lru.Add(key, places)
	if b, err := json.Marshal(places); err == nil {
		c.kv.Set(ctx, key, b, c.ttl)
	}
	return clone(places), nil
}

func clone(p []model.Place) []model.Place {
	return append([]model.Place(nil), p...)
}
