package redisstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-poi-cache/internal/metrics"
)

func Test_RedisMetrics_OpsAndHitMiss(t *testing.T) {
	p := metrics.Init(metrics.Config{})
	observability.Init(p.Registerer(), true)

	c, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = c.Set(ctx, "k:hit", []byte("v"), time.Minute)
	_, _ = c.MGet(ctx, []string{"k:hit", "k:miss"})
	_, _ = c.PipelinedSet(ctx, []KV{{Key: "k:p", Val: []byte("v")}}, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	body := rr.Body.String()

	for _, want := range []string{
		`cache_op_total{op="set",outcome="ok"}`,
		`cache_op_total{op="mget",outcome="ok"}`,
		`cache_op_total{op="mset",outcome="ok"}`,
		`redis_operation_duration_seconds_bucket{op="set"`,
		`route_cache_hits_total`,
		`route_cache_misses_total`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q\n%s", want, body)
		}
	}
}
