// Package observability owns the Prometheus collectors shared by every component.
package observability

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "route_cache_hits_total",
		Help: "Redis keys found on read.",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "route_cache_misses_total",
		Help: "Redis keys absent on read.",
	})

	cacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Absorbed cache failures by category.",
		},
		[]string{"category"},
	)

	tierReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tier_reads_total",
			Help: "Dataset reads by the tier that served them (or none).",
		},
		[]string{"dataset", "tier"},
	)

	datasetRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dataset_records",
			Help: "Records held by the in-process tier of a station dataset.",
		},
		[]string{"dataset"},
	)

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_refresh_regions_total",
			Help: "Region fetches during dataset refresh by outcome.",
		},
		[]string{"dataset", "outcome"},
	)

	refreshEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_refresh_events_total",
			Help: "Refresh events published or consumed, by action.",
		},
		[]string{"dataset", "action"},
	)

	mu sync.Mutex
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		cacheOpTotal, redisOpDuration, cacheHits, cacheMisses, cacheErrors,
		tierReads, datasetRecords, refreshTotal, refreshEvents,
	}
}

// Init registers the collectors on reg. Passing a nil registerer with on=true
// uses the default registry. Calling it again with another registry is fine.
func Init(reg prometheus.Registerer, on bool) {
	mu.Lock()
	defer mu.Unlock()
	if !on {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, err error, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, outcome(err)).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpTotal.WithLabelValues(op, outcome(err)).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if n > 0 {
		cacheHits.Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		cacheMisses.Add(float64(n))
	}
}

func IncCacheError(category string) {
	cacheErrors.WithLabelValues(category).Inc()
}

func ObserveTierRead(dataset, tier string) {
	if tier == "" {
		tier = "none"
	}
	tierReads.WithLabelValues(dataset, tier).Inc()
}

func SetDatasetRecords(dataset string, n int) {
	datasetRecords.WithLabelValues(dataset).Set(float64(n))
}

func ObserveRefreshRegion(dataset string, err error) {
	refreshTotal.WithLabelValues(dataset, outcome(err)).Inc()
}

func ObserveRefreshEvent(dataset, action string) {
	refreshEvents.WithLabelValues(dataset, action).Inc()
}
