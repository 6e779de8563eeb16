package kakaonavi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

const directionsReply = `{"routes":[{"result_code":0,"result_msg":"길찾기 성공",
 "summary":{"distance":12345,"duration":1500},
 "sections":[{"roads":[{"vertexes":[127.0,37.5,127.01,37.51]},{"vertexes":[127.01,37.51,127.02,37.52]}]}]}]}`

var (
	origin = model.Coordinate{Lat: 37.5, Lng: 127.0}
	dest   = model.Coordinate{Lat: 37.52, Lng: 127.02}
)

func TestRoute_ParsesSummaryAndPolyline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != pathDirection || q.Get("origin") != origin.String() || q.Get("destination") != dest.String() {
			t.Errorf("request = %s", r.URL)
		}
		if wp := q.Get("waypoints"); strings.Count(wp, "|") != 1 {
			t.Errorf("waypoints = %q", wp)
		}
		_, _ = w.Write([]byte(directionsReply))
	}))
	defer srv.Close()

	c, err := New(srv.Client(), srv.URL, "k")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wps := []model.Coordinate{{Lat: 37.505, Lng: 127.005}, {Lat: 37.515, Lng: 127.015}}
	rs, err := c.Route(context.Background(), origin, dest, wps)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if rs.DistanceMeters != 12345 || rs.DurationSeconds != 1500 {
		t.Fatalf("summary = %+v", rs)
	}
	if len(rs.Polyline) != 3 || rs.Polyline[0] != origin || rs.Polyline[2] != dest {
		t.Fatalf("polyline = %+v", rs.Polyline)
	}
}

func TestRoute_MemoAvoidsSecondCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(directionsReply))
	}))
	defer srv.Close()

	c, _ := New(srv.Client(), srv.URL, "k", WithMemo(16, time.Minute))
	for range 3 {
		if _, err := c.Route(context.Background(), origin, dest, nil); err != nil {
			t.Fatalf("Route: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream called %d times", calls.Load())
	}
}

func TestRoute_NoRouteResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[{"result_code":104,"result_msg":"출발지와 도착지가 너무 가까움"}]}`))
	}))
	defer srv.Close()

	c, _ := New(srv.Client(), srv.URL, "k")
	_, err := c.Route(context.Background(), origin, dest, nil)
	if !errors.Is(err, model.ErrUpstream) || !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v", err)
	}
}

func TestRoute_TooManyWaypoints(t *testing.T) {
	c, _ := New(http.DefaultClient, "http://example.invalid", "k")
	wps := make([]model.Coordinate, MaxWaypoints+1)
	if _, err := c.Route(context.Background(), origin, dest, wps); !errors.Is(err, ErrTooManyWaypoints) {
		t.Fatalf("err = %v", err)
	}
}
