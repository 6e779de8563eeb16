// Command loadgen replays a Zipf-skewed mix of intercity routes against
// /v1/route/candidates and writes per-request samples plus a summary.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/logger"
)

type Config struct {
	TargetURL      string
	Categories     string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	RouteCount     int
	PointsPerRoute int
	OutputPrefix   string
	RequestTimeout time.Duration
	AppendTS       bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/v1/route/candidates", "candidates endpoint")
	flag.StringVar(&cfg.Categories, "categories", "gas_station,ev_charger,cafe", "comma-separated categories to rotate through")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.RouteCount, "routes", 64, "distinct routes in pool")
	flag.IntVar(&cfg.PointsPerRoute, "points", 200, "polyline vertices per route")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 60*time.Second, "per-request timeout")
	flag.BoolVar(&cfg.AppendTS, "append-ts", true, "append a UTC timestamp to the output prefix")
	flag.Parse()
	return cfg
}

type city struct {
	name     string
	lat, lng float64
}

var cities = []city{
	{"seoul", 37.5665, 126.9780},
	{"busan", 35.1796, 129.0756},
	{"daegu", 35.8714, 128.6014},
	{"daejeon", 36.3504, 127.3845},
	{"gwangju", 35.1595, 126.8526},
	{"gangneung", 37.7519, 128.8761},
	{"jeonju", 35.8242, 127.1480},
	{"cheongju", 36.6424, 127.4890},
}

type route struct {
	Name     string
	Polyline []model.Coordinate
	Distance float64
	Duration float64
}

// makeRoutes builds straight-line polylines between city pairs with a little
// jitter on each end, so hot pairs repeat while their exact geometry varies.
func makeRoutes(count, points int, r *rand.Rand) []route {
	if points < 2 {
		points = 2
	}
	out := make([]route, 0, count)
	for i := 0; len(out) < count; i++ {
		a := cities[i%len(cities)]
		b := cities[(i/len(cities)+i+1)%len(cities)]
		if a == b {
			continue
		}
		jit := func() float64 { return (r.Float64() - 0.5) * 0.02 }
		from := model.Coordinate{Lat: a.lat + jit(), Lng: a.lng + jit()}
		to := model.Coordinate{Lat: b.lat + jit(), Lng: b.lng + jit()}
		line := make([]model.Coordinate, points)
		for k := range points {
			t := float64(k) / float64(points-1)
			line[k] = model.Coordinate{
				Lat: from.Lat + (to.Lat-from.Lat)*t,
				Lng: from.Lng + (to.Lng-from.Lng)*t,
			}
		}
		dist := haversineM(from, to) * 1.3
		out = append(out, route{
			Name:     a.name + "-" + b.name,
			Polyline: line,
			Distance: dist,
			Duration: dist / (80_000.0 / 3600.0),
		})
	}
	return out
}

func haversineM(a, b model.Coordinate) float64 {
	const earth = 6_371_000.0
	rad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLng := (b.Lng - a.Lng) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earth * math.Asin(math.Sqrt(h))
}

type candidatesBody struct {
	Polyline         []model.Coordinate `json:"polyline"`
	Category         string             `json:"category"`
	OriginalDuration float64            `json:"originalDuration"`
	OriginalDistance float64            `json:"originalDistance"`
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	Route     string
	Category  string
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Routes        int       `json:"routes"`
	TargetURL     string    `json:"target"`
}

type aggregate struct {
	total, success, errors int64
	latMs                  []float64
}

func main() {
	cfg := loadConfig()
	zl := logger.Build(logger.Config{Level: "info", Console: true, Service: "loadgen", Component: "main"}, os.Stderr)
	log := logger.NewSlog(&zl)

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Error("mkdir results", "err", err)
		os.Exit(1)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTS {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	var categories []string
	for c := range strings.SplitSeq(cfg.Categories, ",") {
		c = strings.TrimSpace(c)
		if !model.Category(c).Valid() {
			log.Error("unknown category", "category", c)
			os.Exit(2)
		}
		categories = append(categories, c)
	}

	seed := time.Now().UnixNano()
	routes := makeRoutes(cfg.RouteCount, cfg.PointsPerRoute, rand.New(rand.NewSource(seed)))
	if len(routes) == 0 {
		log.Error("no routes generated")
		os.Exit(2)
	}
	imax := uint64(len(routes)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 128,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Error("open csv", "err", err)
		os.Exit(1)
	}
	defer func() { _ = csvFile.Close() }()
	w := csv.NewWriter(csvFile)

	samples := make(chan sample, 1024)
	results := make(chan aggregate, 1)
	go func() {
		_ = w.Write([]string{"timestamp", "latency_ms", "status", "error", "route", "category"})
		var agg aggregate
		for s := range samples {
			agg.total++
			ms := float64(s.Latency.Microseconds()) / 1000.0
			if s.ErrorMsg == "" {
				agg.success++
				agg.latMs = append(agg.latMs, ms)
			} else {
				agg.errors++
			}
			_ = w.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", ms),
				fmt.Sprint(s.Status),
				s.ErrorMsg,
				s.Route,
				s.Category,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			log.Warn("csv flush", "err", err)
		}
		results <- agg
	}()

	start := time.Now()
	log.Info("loadgen start", "target", cfg.TargetURL, "duration", cfg.Duration, "concurrency", cfg.Concurrency,
		"zipf_s", cfg.ZipfS, "zipf_v", cfg.ZipfV, "routes", len(routes))

	var wg sync.WaitGroup
	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				rt := routes[zipf.Uint64()]
				cat := categories[r.Intn(len(categories))]
				s := fire(ctx, httpClient, cfg.TargetURL, rt, cat)
				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(samples)
	}()

	agg := <-results
	end := time.Now()
	elapsed := end.Sub(start).Seconds()
	sort.Float64s(agg.latMs)

	sum := summary{
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Routes:        len(routes),
		TargetURL:     cfg.TargetURL,
	}
	if f, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		_ = f.Close()
	}

	log.Info("done", "total", sum.TotalRequests, "success", sum.SuccessCount, "errors", sum.ErrorCount,
		"rps", sum.ThroughputRPS, "p50_ms", sum.P50Ms, "p95_ms", sum.P95Ms, "p99_ms", sum.P99Ms,
		"csv", csvPath, "summary", jsonPath)
}

func fire(ctx context.Context, c *http.Client, target string, rt route, cat string) sample {
	body, _ := json.Marshal(candidatesBody{
		Polyline:         rt.Polyline,
		Category:         cat,
		OriginalDuration: rt.Duration,
		OriginalDistance: rt.Distance,
	})
	s := sample{Timestamp: time.Now(), Route: rt.Name, Category: cat}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	s.Latency = time.Since(s.Timestamp)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	s.Status = resp.StatusCode
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
	}
	return s
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	k := (p / 100.0) * float64(len(sorted)-1)
	i := int(math.Floor(k))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	d := k - float64(i)
	return sorted[i]*(1-d) + sorted[i+1]*d
}
