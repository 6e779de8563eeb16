// Package kv is the best-effort facade over the distributed cache. Every
// operation degrades to a safe default when Redis is unconfigured or failing,
// so callers never branch on cache errors.
package kv

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
)

// Backend is the subset of redisstore.Client the facade needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	PipelinedSet(ctx context.Context, kvs []redisstore.KV, ttl time.Duration) (int, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

const (
	defaultReadBatch = 500
	errorBucketTTL   = 2 * time.Hour
)

type Store struct {
	be        Backend
	log       *slog.Logger
	opTimeout time.Duration
	readBatch int
	now       func() time.Time
}

type Option func(*Store)

func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) { s.opTimeout = d }
}

// WithReadBatch bounds how many keys go into a single MGET.
func WithReadBatch(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.readBatch = n
		}
	}
}

func New(be Backend, log *slog.Logger, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{be: be, log: log, readBatch: defaultReadBatch, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FromClient avoids wrapping a nil *redisstore.Client in a non-nil interface.
func FromClient(cli *redisstore.Client, log *slog.Logger, opts ...Option) *Store {
	if cli == nil {
		return New(nil, log, opts...)
	}
	return New(cli, log, opts...)
}

func (s *Store) Enabled() bool { return s != nil && s.be != nil }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) fail(ctx context.Context, op string, err error, attrs ...any) {
	observability.IncCacheError("redis_" + op)
	s.log.WarnContext(ctx, "cache op failed, degrading", append([]any{"op", op, "err", err}, attrs...)...)
}

// Get treats any failure as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.Enabled() {
		return nil, false
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b, ok, err := s.be.Get(ctx, key)
	if err != nil {
		s.fail(ctx, "get", err, "key", key)
		return nil, false
	}
	return b, ok
}

// Set reports whether the write landed; failures are logged, never returned.
func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) bool {
	if !s.Enabled() {
		return false
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.be.Set(ctx, key, val, ttl); err != nil {
		s.fail(ctx, "set", err, "key", key)
		return false
	}
	return true
}

// MGet returns values aligned to keys, nil where absent. A failed chunk reads
// as all-absent for that chunk only.
func (s *Store) MGet(ctx context.Context, keys []string) [][]byte {
	out := make([][]byte, len(keys))
	if !s.Enabled() || len(keys) == 0 {
		return out
	}
	for lo := 0; lo < len(keys); lo += s.readBatch {
		hi := min(lo+s.readBatch, len(keys))
		chunk := keys[lo:hi]

		cctx, cancel := s.withTimeout(ctx)
		m, err := s.be.MGet(cctx, chunk)
		cancel()
		if err != nil {
			s.fail(ctx, "mget", err, "keys", len(chunk), "offset", lo)
			continue
		}
		for i, k := range chunk {
			if v, ok := m[k]; ok {
				out[lo+i] = v
			}
		}
	}
	return out
}

// BulkSet splits entries into batchSize chunks, one pipeline per chunk, and
// returns the total number of keys written.
func (s *Store) BulkSet(ctx context.Context, entries []redisstore.KV, batchSize int, ttl time.Duration) int {
	if !s.Enabled() || len(entries) == 0 {
		return 0
	}
	if batchSize <= 0 {
		batchSize = len(entries)
	}
	written := 0
	for lo := 0; lo < len(entries); lo += batchSize {
		hi := min(lo+batchSize, len(entries))

		cctx, cancel := s.withTimeout(ctx)
		n, err := s.be.PipelinedSet(cctx, entries[lo:hi], ttl)
		cancel()
		written += n
		if err != nil {
			s.fail(ctx, "mset", err, "batch_start", lo, "batch_len", hi-lo, "written", n)
		}
	}
	return written
}

// IncrementErrorCount bumps the current hour's bucket for category. Counts are
// for health reporting only.
func (s *Store) IncrementErrorCount(ctx context.Context, category string) {
	observability.IncCacheError(category)
	if !s.Enabled() {
		return
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.be.IncrWithTTL(ctx, keys.ErrorCounter(category, s.now()), errorBucketTTL); err != nil {
		s.log.DebugContext(ctx, "error counter increment failed", "category", category, "err", err)
	}
}

// ErrorCount returns the current hour's count for category.
func (s *Store) ErrorCount(ctx context.Context, category string) int64 {
	b, ok := s.Get(ctx, keys.ErrorCounter(category, s.now()))
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
