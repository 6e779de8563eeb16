package placecache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/kv"
	"github.com/mohammed-shakir/route-poi-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

type countingSearcher struct {
	calls  atomic.Int32
	last   model.PlaceQuery
	places []model.Place
	err    error
}

func (s *countingSearcher) Search(_ context.Context, q model.PlaceQuery) ([]model.Place, error) {
	s.calls.Add(1)
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	return s.places, nil
}

func newKV(t *testing.T) *kv.Store {
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
	return kv.FromClient(cli, nil)
}

var q = model.PlaceQuery{CategoryCode: "OL7", Center: model.Coordinate{Lat: 37.5, Lng: 127.0}, RadiusM: 1000}

func TestSearch_SameCellServedFromLRU(t *testing.T) {
	up := &countingSearcher{places: []model.Place{{ID: "1", Name: "강남주유소"}}}
	c := New(up, nil, nil, Config{Res: 9, TTL: time.Minute})

	for range 3 {
		got, err := c.Search(context.Background(), q)
		if err != nil || len(got) != 1 {
			t.Fatalf("Search = %v, %v", got, err)
		}
	}
	nearby := q
	nearby.Center.Lat += 0.0000001
	if _, err := c.Search(context.Background(), nearby); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if up.calls.Load() != 1 {
		t.Fatalf("upstream calls = %d", up.calls.Load())
	}
	if up.last.Center == q.Center {
		t.Fatalf("miss should query from the cell centre")
	}
}

func TestSearch_DifferentFiltersMiss(t *testing.T) {
	up := &countingSearcher{places: []model.Place{{ID: "1"}}}
	c := New(up, nil, nil, Config{})
	_, _ = c.Search(context.Background(), q)
	other := q
	other.RadiusM = 2000
	_, _ = c.Search(context.Background(), other)
	if up.calls.Load() != 2 {
		t.Fatalf("upstream calls = %d", up.calls.Load())
	}
}

func TestSearch_RedisSharedAcrossInstances(t *testing.T) {
	store := newKV(t)
	up := &countingSearcher{places: []model.Place{{ID: "9", Name: "휴게소"}}}
	a := New(up, store, nil, Config{})
	if _, err := a.Search(context.Background(), q); err != nil {
		t.Fatalf("Search: %v", err)
	}

	b := New(up, store, nil, Config{})
	got, err := b.Search(context.Background(), q)
	if err != nil || len(got) != 1 || got[0].ID != "9" {
		t.Fatalf("Search = %v, %v", got, err)
	}
	if up.calls.Load() != 1 {
		t.Fatalf("upstream calls = %d", up.calls.Load())
	}
}

func TestSearch_ResultsAreCopies(t *testing.T) {
	up := &countingSearcher{places: []model.Place{{ID: "1"}}}
	c := New(up, nil, nil, Config{})
	got, _ := c.Search(context.Background(), q)
	got[0].DetourMinutes = 9
	again, _ := c.Search(context.Background(), q)
	if again[0].DetourMinutes != 0 {
		t.Fatalf("cached slice mutated by caller")
	}
}

func TestSearch_ErrorsNotCached(t *testing.T) {
	up := &countingSearcher{err: errors.New("boom")}
	c := New(up, nil, nil, Config{})
	if _, err := c.Search(context.Background(), q); err == nil {
		t.Fatalf("expected error")
	}
	up.err = nil
	if _, err := c.Search(context.Background(), q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if up.calls.Load() != 2 {
		t.Fatalf("upstream calls = %d", up.calls.Load())
	}
}
