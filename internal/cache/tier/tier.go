// Package tier models a dataset held in several caches checked in order:
// the first tier holding a valid entry wins and earlier tiers are backfilled.
package tier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
)

// Entry is valid iff now - FetchedAt < TTL. An expired entry is absent.
type Entry[T any] struct {
	Data      T             `json:"data"`
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"ttl"`
}

func (e Entry[T]) Valid(now time.Time) bool {
	return e.TTL > 0 && !e.FetchedAt.IsZero() && now.Sub(e.FetchedAt) < e.TTL
}

func (e Entry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

type Tier[T any] interface {
	Name() string
	// Load returns ok=false when the tier holds nothing. Validity is checked by the chain.
	Load(ctx context.Context) (Entry[T], bool, error)
	Store(ctx context.Context, e Entry[T]) error
}

type Chain[T any] struct {
	name  string
	tiers []Tier[T]
	log   *slog.Logger
	now   func() time.Time
}

func NewChain[T any](name string, log *slog.Logger, tiers ...Tier[T]) *Chain[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Chain[T]{name: name, tiers: tiers, log: log, now: time.Now}
}

// WithClock replaces the clock used for validity checks.
func (c *Chain[T]) WithClock(now func() time.Time) *Chain[T] {
	c.now = now
	return c
}

func (c *Chain[T]) find(ctx context.Context) (Entry[T], int) {
	now := c.now()
	for i, t := range c.tiers {
		e, ok, err := t.Load(ctx)
		if err != nil {
			c.log.WarnContext(ctx, "tier load failed", "dataset", c.name, "tier", t.Name(), "err", err)
			continue
		}
		if !ok {
			continue
		}
		if !e.Valid(now) {
			c.log.DebugContext(ctx, "tier entry expired", "dataset", c.name, "tier", t.Name(),
				"age", e.Age(now).String())
			continue
		}
		return e, i
	}
	return Entry[T]{}, -1
}

// Get returns the first valid entry and the name of the tier that served it.
// Tiers in front of the serving tier are backfilled best-effort.
func (c *Chain[T]) Get(ctx context.Context) (Entry[T], string, bool) {
	e, idx := c.find(ctx)
	if idx < 0 {
		observability.ObserveTierRead(c.name, "")
		return Entry[T]{}, "", false
	}
	name := c.tiers[idx].Name()
	observability.ObserveTierRead(c.name, name)
	for _, t := range c.tiers[:idx] {
		if err := t.Store(ctx, e); err != nil {
			c.log.WarnContext(ctx, "tier backfill failed", "dataset", c.name, "tier", t.Name(), "err", err)
		}
	}
	return e, name, true
}

// Peek is Get without side effects.
func (c *Chain[T]) Peek(ctx context.Context) (Entry[T], string, bool) {
	e, idx := c.find(ctx)
	if idx < 0 {
		return Entry[T]{}, "", false
	}
	return e, c.tiers[idx].Name(), true
}

// Put writes e to every tier. A failing tier does not stop the others; the
// joined error is informational only.
func (c *Chain[T]) Put(ctx context.Context, e Entry[T]) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Store(ctx, e); err != nil {
			c.log.WarnContext(ctx, "tier write failed", "dataset", c.name, "tier", t.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Tier returns the tier registered under name, or nil.
func (c *Chain[T]) Tier(name string) Tier[T] {
	for _, t := range c.tiers {
		if t.Name() == name {
			return t
		}
	}
	return nil
}
