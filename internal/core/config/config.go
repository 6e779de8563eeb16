// Package config reads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type RedisCfg struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// IOTimeout is the socket read/write deadline; OpTimeout bounds a whole
	// cache call including pool waits.
	IOTimeout  time.Duration
	OpTimeout  time.Duration
	WriteBatch int
}

type UpstreamCfg struct {
	KakaoRestKey  string
	KakaoLocalURL string
	KakaoNaviURL  string
	OpinetKey     string
	OpinetURL     string
	EVKey         string
	EVURL         string
	Timeout       time.Duration
	RouteMemoSize int
	RouteMemoTTL  time.Duration
}

type SelectorCfg struct {
	SearchBatch      int
	DetourBatch      int
	Segments         int
	PerSegment       int
	MaxDetourMinutes int
	RoadFactor       float64
	SpeedKmh         float64
	OverheadMin      float64
}

type StationCfg struct {
	TTL                time.Duration
	SnapshotDir        string
	SnapshotTTL        time.Duration
	GridPrecision      int
	PartitionPrecision int
	SearchRadiusCells  int
	MatchRadiusM       float64
	NameSimilarity     float64
	RefreshConcurrency int
	RefreshTimeout     time.Duration
	RefreshBatch       int
	RefreshToken       string
}

type PlaceCacheCfg struct {
	H3Res int
	TTL   time.Duration
	Size  int
}

type RefreshEventsCfg struct {
	Enabled    bool
	Brokers    []string
	Topic      string
	GroupID    string
	InstanceID string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	MetricsEnabled bool
	ShutdownGrace  time.Duration

	Redis         RedisCfg
	Upstream      UpstreamCfg
	Selector      SelectorCfg
	Stations      StationCfg
	PlaceCache    PlaceCacheCfg
	RefreshEvents RefreshEventsCfg
}

func FromEnv() Config {
	host, _ := os.Hostname()
	gridPrecision := getint("GRID_PRECISION", 2)
	if gridPrecision < 0 || gridPrecision > 6 {
		gridPrecision = 2
	}
	partition := getint("PARTITION_PRECISION", 1)
	if partition < 0 || partition > gridPrecision {
		partition = min(1, gridPrecision)
	}
	h3Res := getint("PLACE_CACHE_H3_RES", 9)
	if h3Res < 0 || h3Res > 15 {
		h3Res = 9
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		ShutdownGrace:  getduration("SHUTDOWN_GRACE", 10*time.Second),

		Redis: RedisCfg{
			// empty disables the distributed tier
			Addr:       os.Getenv("REDIS_ADDR"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         getint("REDIS_DB", 0),
			PoolSize:   getint("REDIS_POOL_SIZE", 32),
			IOTimeout:  getduration("REDIS_IO_TIMEOUT", 2*time.Second),
			OpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			WriteBatch: getint("REDIS_WRITE_BATCH", 50),
		},
		Upstream: UpstreamCfg{
			KakaoRestKey:  os.Getenv("KAKAO_REST_KEY"),
			KakaoLocalURL: getenv("KAKAO_LOCAL_URL", "https://dapi.kakao.com"),
			KakaoNaviURL:  getenv("KAKAO_NAVI_URL", "https://apis-navi.kakaomobility.com"),
			OpinetKey:     os.Getenv("OPINET_API_KEY"),
			OpinetURL:     getenv("OPINET_URL", "https://www.opinet.co.kr/api/areaStation.do"),
			EVKey:         os.Getenv("EV_API_KEY"),
			EVURL:         getenv("EV_URL", "https://apis.data.go.kr/B552584/EvCharger/getChargerInfo"),
			Timeout:       getduration("UPSTREAM_TIMEOUT", 5*time.Second),
			RouteMemoSize: getint("ROUTE_MEMO_SIZE", 2048),
			RouteMemoTTL:  getduration("ROUTE_MEMO_TTL", 10*time.Minute),
		},
		Selector: SelectorCfg{
			SearchBatch:      getint("SEARCH_BATCH_SIZE", 4),
			DetourBatch:      getint("DETOUR_BATCH_SIZE", 3),
			Segments:         getint("NUM_SEGMENTS", 5),
			PerSegment:       getint("PER_SEGMENT", 3),
			MaxDetourMinutes: getint("MAX_DETOUR_MINUTES", 15),
			RoadFactor:       getfloat("DETOUR_ROAD_FACTOR", 1.4),
			SpeedKmh:         getfloat("DETOUR_SPEED_KMH", 40),
			OverheadMin:      getfloat("DETOUR_OVERHEAD_MIN", 3),
		},
		Stations: StationCfg{
			TTL:                getduration("STATION_TTL", 24*time.Hour),
			SnapshotDir:        getenv("SNAPSHOT_DIR", "data"),
			SnapshotTTL:        getduration("SNAPSHOT_TTL", 72*time.Hour),
			GridPrecision:      gridPrecision,
			PartitionPrecision: partition,
			SearchRadiusCells:  getint("GRID_SEARCH_RADIUS_CELLS", 1),
			MatchRadiusM:       getfloat("MATCH_RADIUS_M", 80),
			NameSimilarity:     getfloat("NAME_SIMILARITY", 0.8),
			RefreshConcurrency: getint("REFRESH_CONCURRENCY", 4),
			RefreshTimeout:     getduration("REFRESH_TIMEOUT", 50*time.Second),
			RefreshBatch:       getint("REFRESH_BATCH_REGIONS", 3),
			RefreshToken:       os.Getenv("REFRESH_TOKEN"),
		},
		PlaceCache: PlaceCacheCfg{
			H3Res: h3Res,
			TTL:   getduration("PLACE_CACHE_TTL", 6*time.Hour),
			Size:  getint("PLACE_CACHE_SIZE", 4096),
		},
		RefreshEvents: RefreshEventsCfg{
			Enabled:    getbool("REFRESH_EVENTS_ENABLED", false),
			Brokers:    splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:      getenv("REFRESH_EVENTS_TOPIC", "station-refresh"),
			GroupID:    getenv("REFRESH_EVENTS_GROUP", "route-poi-"+host),
			InstanceID: getenv("INSTANCE_ID", host),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
