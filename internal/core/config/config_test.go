package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "REDIS_ADDR", "GRID_PRECISION", "PARTITION_PRECISION", "REFRESH_TIMEOUT",
		"DETOUR_ROAD_FACTOR", "DETOUR_SPEED_KMH", "DETOUR_OVERHEAD_MIN"} {
		t.Setenv(k, "")
	}
	c := FromEnv()

	if c.Addr != ":8090" {
		t.Fatalf("addr = %q", c.Addr)
	}
	if c.Redis.Addr != "" {
		t.Fatalf("redis should be disabled by default, got %q", c.Redis.Addr)
	}
	if c.Selector.RoadFactor != 1.4 || c.Selector.SpeedKmh != 40 || c.Selector.OverheadMin != 3 {
		t.Fatalf("detour defaults = %+v", c.Selector)
	}
	if c.Stations.GridPrecision != 2 || c.Stations.PartitionPrecision != 1 {
		t.Fatalf("precision = %d/%d", c.Stations.GridPrecision, c.Stations.PartitionPrecision)
	}
	if c.Stations.RefreshTimeout != 50*time.Second {
		t.Fatalf("refresh timeout = %v", c.Stations.RefreshTimeout)
	}
}

func TestFromEnv_OutOfRangePrecisions(t *testing.T) {
	t.Setenv("GRID_PRECISION", "9")
	t.Setenv("PARTITION_PRECISION", "8")
	t.Setenv("PLACE_CACHE_H3_RES", "20")
	c := FromEnv()
	if c.Stations.GridPrecision != 2 {
		t.Fatalf("grid precision = %d, want default 2", c.Stations.GridPrecision)
	}
	if c.Stations.PartitionPrecision != 1 {
		t.Fatalf("partition precision = %d, want default 1", c.Stations.PartitionPrecision)
	}
	if c.PlaceCache.H3Res != 9 {
		t.Fatalf("h3 res = %d, want default 9", c.PlaceCache.H3Res)
	}
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("NUM_SEGMENTS", "many")
	t.Setenv("CACHE_OP_TIMEOUT", "soon")
	t.Setenv("REFRESH_EVENTS_ENABLED", "yes")
	c := FromEnv()
	if c.Selector.Segments != 5 {
		t.Fatalf("segments = %d", c.Selector.Segments)
	}
	if c.Redis.OpTimeout != 250*time.Millisecond {
		t.Fatalf("op timeout = %v", c.Redis.OpTimeout)
	}
	if !c.RefreshEvents.Enabled {
		t.Fatal("yes should enable refresh events")
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a:9092, ,b:9092,")
	if want := []string{"a:9092", "b:9092"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV = %v, want %v", got, want)
	}
	if splitCSV("") != nil {
		t.Fatal("empty input should be nil")
	}
}
