package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})
	observability.Init(p.Registerer(), true)

	observability.AddCacheHits(3)
	observability.AddCacheMisses(1)
	observability.ObserveCacheOp("mget", nil, 0.002)
	observability.ObserveRefreshRegion("ev", errors.New("timeout"))
	observability.SetDatasetRecords("ev", 1234)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`redis_operation_duration_seconds_count`,
		`route_cache_hits_total `,
		`route_cache_misses_total `,
		`dataset_records{dataset="ev"} 1234`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "dataset_refresh_regions_total",
		`dataset="ev"`, `outcome="error"`)
	assertHasMetricLine(t, body, "cache_op_total",
		`op="mget"`, `outcome="ok"`)
	assertHasMetricLine(t, body, "routepoi_build_info",
		`version="test"`)
}
