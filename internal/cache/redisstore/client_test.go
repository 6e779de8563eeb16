package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestNew_EmptyAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestSetGetMGetDel_HappyPath_AndMGetFiltersMissing(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := rc.Set(ctx, "k2", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(b) != "v1" {
		t.Fatalf("Get k1 = %q %v %v", b, ok, err)
	}
	if _, ok, err := rc.Get(ctx, "nope"); err != nil || ok {
		t.Fatalf("Get missing = %v %v", ok, err)
	}

	got, err := rc.MGet(ctx, []string{"k1", "k2", "missing"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("MGet size=%d want 2", len(got))
	}
	if string(got["k1"]) != "v1" || string(got["k2"]) != "v2" {
		t.Fatalf("unexpected values: %+v", got)
	}

	if err := rc.Del(ctx, "k1", "k2"); err != nil {
		t.Fatalf("Del: %v", err)
	}
}

func TestPipelinedSet_WritesAllWithTTL(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	kvs := make([]KV, 0, 25)
	for i := range 25 {
		kvs = append(kvs, KV{Key: fmt.Sprintf("p:%d", i), Val: []byte("x")})
	}
	n, err := rc.PipelinedSet(ctx, kvs, 2*time.Minute)
	if err != nil {
		t.Fatalf("PipelinedSet: %v", err)
	}
	if n != 25 {
		t.Fatalf("written=%d want 25", n)
	}
	if ttl := mr.TTL("p:7"); ttl <= 0 || ttl > 2*time.Minute {
		t.Fatalf("ttl=%v", ttl)
	}
}

func TestIncrWithTTL_CountsAndExpires(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := rc.IncrWithTTL(ctx, "errs", time.Hour)
		if err != nil {
			t.Fatalf("IncrWithTTL: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("n=%d want %d", n, i)
		}
	}
	mr.FastForward(2 * time.Hour)
	if mr.Exists("errs") {
		t.Fatalf("counter should have expired")
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, err := rc.MGet(ctx, []string{"k"}); err == nil {
		t.Fatalf("expected error on MGet with canceled context")
	}
	if _, err := rc.PipelinedSet(ctx, []KV{{Key: "k", Val: []byte("v")}}, time.Second); err == nil {
		t.Fatalf("expected error on PipelinedSet with canceled context")
	}
}
