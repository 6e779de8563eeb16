package kv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/redisstore"
)

func newStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return FromClient(cli, nil, opts...), mr
}

func TestUnconfigured_DegradesToDefaults(t *testing.T) {
	s := FromClient(nil, nil)
	ctx := context.Background()

	if s.Enabled() {
		t.Fatalf("nil client must disable the store")
	}
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatalf("Get on unconfigured store hit")
	}
	if s.Set(ctx, "k", []byte("v"), time.Minute) {
		t.Fatalf("Set on unconfigured store reported success")
	}
	got := s.MGet(ctx, []string{"a", "b"})
	if len(got) != 2 || got[0] != nil || got[1] != nil {
		t.Fatalf("MGet = %v", got)
	}
	if n := s.BulkSet(ctx, []redisstore.KV{{Key: "a"}}, 10, time.Minute); n != 0 {
		t.Fatalf("BulkSet wrote %d", n)
	}
	s.IncrementErrorCount(ctx, "x")
	if n := s.ErrorCount(ctx, "x"); n != 0 {
		t.Fatalf("ErrorCount=%d", n)
	}
}

func TestMGet_AlignedToKeys_AcrossChunks(t *testing.T) {
	s, mr := newStore(t, WithReadBatch(2))
	_ = mr.Set("a", "1")
	_ = mr.Set("c", "3")
	_ = mr.Set("e", "5")

	got := s.MGet(context.Background(), []string{"a", "b", "c", "d", "e"})
	want := []string{"1", "", "3", "", "5"}
	for i, w := range want {
		if w == "" {
			if got[i] != nil {
				t.Fatalf("idx %d want nil got %q", i, got[i])
			}
			continue
		}
		if string(got[i]) != w {
			t.Fatalf("idx %d want %q got %q", i, w, got[i])
		}
	}
}

func TestBulkSet_BatchesAndCounts(t *testing.T) {
	s, mr := newStore(t)
	entries := make([]redisstore.KV, 0, 23)
	for i := range 23 {
		entries = append(entries, redisstore.KV{Key: fmt.Sprintf("b:%d", i), Val: []byte("v")})
	}
	n := s.BulkSet(context.Background(), entries, 5, time.Minute)
	if n != 23 {
		t.Fatalf("written=%d want 23", n)
	}
	if !mr.Exists("b:22") {
		t.Fatalf("last batch not written")
	}
}

type flakyBackend struct {
	Backend
	calls int
}

func (f *flakyBackend) PipelinedSet(_ context.Context, kvs []redisstore.KV, _ time.Duration) (int, error) {
	f.calls++
	if f.calls == 2 {
		return 0, errors.New("payload too large")
	}
	return len(kvs), nil
}

func TestBulkSet_FailedBatchDoesNotAbortOthers(t *testing.T) {
	fb := &flakyBackend{}
	s := New(fb, nil)
	entries := make([]redisstore.KV, 9)
	n := s.BulkSet(context.Background(), entries, 3, time.Minute)
	if fb.calls != 3 {
		t.Fatalf("calls=%d want 3", fb.calls)
	}
	if n != 6 {
		t.Fatalf("written=%d want 6", n)
	}
}

func TestErrorCount_HourBucket(t *testing.T) {
	s, mr := newStore(t)
	fixed := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	s.IncrementErrorCount(ctx, "fuel:refresh")
	s.IncrementErrorCount(ctx, "fuel:refresh")
	s.IncrementErrorCount(ctx, "ev:refresh")

	if n := s.ErrorCount(ctx, "fuel:refresh"); n != 2 {
		t.Fatalf("fuel count=%d want 2", n)
	}
	if !mr.Exists("errors:fuel:refresh:2026030110") {
		t.Fatalf("hour bucket key missing: %v", mr.Keys())
	}

	s.now = func() time.Time { return fixed.Add(time.Hour) }
	if n := s.ErrorCount(ctx, "fuel:refresh"); n != 0 {
		t.Fatalf("next hour count=%d want 0", n)
	}

	mr.FastForward(3 * time.Hour)
	if mr.Exists("errors:fuel:refresh:2026030110") {
		t.Fatalf("bucket should auto-expire")
	}
}
