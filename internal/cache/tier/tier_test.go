package tier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubTier struct {
	name   string
	e      Entry[[]string]
	ok     bool
	err    error
	stored []Entry[[]string]
	failW  bool
}

func (s *stubTier) Name() string { return s.name }

func (s *stubTier) Load(context.Context) (Entry[[]string], bool, error) {
	return s.e, s.ok, s.err
}

func (s *stubTier) Store(_ context.Context, e Entry[[]string]) error {
	if s.failW {
		return errors.New("write refused")
	}
	s.stored = append(s.stored, e)
	s.e, s.ok = e, true
	return nil
}

func fresh(data ...string) Entry[[]string] {
	return Entry[[]string]{Data: data, FetchedAt: time.Now(), TTL: time.Hour}
}

func TestEntry_ExpiredIsInvalid(t *testing.T) {
	now := time.Now()
	e := Entry[int]{Data: 1, FetchedAt: now.Add(-2 * time.Hour), TTL: time.Hour}
	if e.Valid(now) {
		t.Fatalf("expired entry reported valid")
	}
	e.FetchedAt = now.Add(-time.Hour)
	if e.Valid(now) {
		t.Fatalf("entry exactly at ttl must be invalid")
	}
	if (Entry[int]{}).Valid(now) {
		t.Fatalf("zero entry valid")
	}
}

func TestChain_FirstValidWins_AndBackfills(t *testing.T) {
	mem := &stubTier{name: "memory"}
	remote := &stubTier{name: "redis", err: errors.New("conn refused")}
	snap := &stubTier{name: "snapshot", e: fresh("a", "b"), ok: true}

	c := NewChain[[]string]("fuel", nil, mem, remote, snap)
	e, from, ok := c.Get(context.Background())
	if !ok || from != "snapshot" || len(e.Data) != 2 {
		t.Fatalf("Get = %+v %q %v", e, from, ok)
	}
	if len(mem.stored) != 1 {
		t.Fatalf("memory not backfilled")
	}
	if len(remote.stored) != 1 {
		t.Fatalf("redis not backfilled")
	}

	e, from, ok = c.Get(context.Background())
	if !ok || from != "memory" {
		t.Fatalf("second Get served by %q", from)
	}
}

func TestChain_ExpiredTreatedAsAbsent(t *testing.T) {
	stale := Entry[[]string]{Data: []string{"old"}, FetchedAt: time.Now().Add(-48 * time.Hour), TTL: time.Hour}
	mem := &stubTier{name: "memory", e: stale, ok: true}
	snap := &stubTier{name: "snapshot", e: fresh("new"), ok: true}

	c := NewChain[[]string]("ev", nil, mem, snap)
	e, from, ok := c.Get(context.Background())
	if !ok || from != "snapshot" || e.Data[0] != "new" {
		t.Fatalf("Get = %+v from %q", e, from)
	}
}

func TestChain_AllMiss(t *testing.T) {
	c := NewChain[[]string]("ev", nil, &stubTier{name: "memory"}, &stubTier{name: "snapshot"})
	if _, _, ok := c.Get(context.Background()); ok {
		t.Fatalf("expected miss")
	}
	if _, _, ok := c.Peek(context.Background()); ok {
		t.Fatalf("expected miss on peek")
	}
}

func TestChain_PeekDoesNotBackfill(t *testing.T) {
	mem := &stubTier{name: "memory"}
	snap := &stubTier{name: "snapshot", e: fresh("x"), ok: true}
	c := NewChain[[]string]("ev", nil, mem, snap)
	if _, from, ok := c.Peek(context.Background()); !ok || from != "snapshot" {
		t.Fatalf("peek from %q", from)
	}
	if len(mem.stored) != 0 {
		t.Fatalf("peek wrote to memory")
	}
}

func TestChain_PutContinuesPastFailingTier(t *testing.T) {
	mem := &stubTier{name: "memory"}
	remote := &stubTier{name: "redis", failW: true}
	snap := &stubTier{name: "snapshot"}
	c := NewChain[[]string]("fuel", nil, mem, remote, snap)

	err := c.Put(context.Background(), fresh("z"))
	if err == nil {
		t.Fatalf("expected joined error from failing tier")
	}
	if len(mem.stored) != 1 || len(snap.stored) != 1 {
		t.Fatalf("healthy tiers not written")
	}
	if c.Tier("redis") != remote || c.Tier("nope") != nil {
		t.Fatalf("Tier lookup broken")
	}
}

func TestMemory_SwapAndClear(t *testing.T) {
	m := NewMemory[int]()
	if _, ok, _ := m.Load(context.Background()); ok {
		t.Fatalf("empty memory hit")
	}
	_ = m.Store(context.Background(), Entry[int]{Data: 7, FetchedAt: time.Now(), TTL: time.Minute})
	e, ok, _ := m.Load(context.Background())
	if !ok || e.Data != 7 {
		t.Fatalf("Load = %+v %v", e, ok)
	}
	m.Clear()
	if _, ok, _ := m.Load(context.Background()); ok {
		t.Fatalf("cleared memory hit")
	}
}

func TestSnapshot_RoundTripAndTTLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fuel.json")
	s := NewSnapshot[[]string](path, 72*time.Hour)
	if s.Path() != path {
		t.Fatalf("path = %q", s.Path())
	}

	if _, ok, err := s.Load(context.Background()); ok || err != nil {
		t.Fatalf("missing file = %v %v", ok, err)
	}
	if err := s.Store(context.Background(), fresh("a")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	e, ok, err := s.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("Load = %v %v", ok, err)
	}
	if e.TTL != 72*time.Hour || e.Data[0] != "a" {
		t.Fatalf("entry = %+v", e)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestSnapshot_CorruptFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ev.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewSnapshot[[]string](path, 0)
	if _, ok, err := s.Load(context.Background()); ok || err == nil {
		t.Fatalf("corrupt snapshot = %v %v", ok, err)
	}
}
