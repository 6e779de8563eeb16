package opinet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

func stationJSON(id string) string {
	return fmt.Sprintf(`{"UNI_ID":%q,"OS_NM":" 강남주유소 ","POLL_DIV_CD":"SKE","NEW_ADR":"서울 강남구 1",
		"LAT":37.5,"LNG":127.0,"OIL_PRICE":[{"PRODCD":"B027","PRICE":1689},{"PRODCD":"D047","PRICE":1549}]}`, id)
}

func TestFetchRegion_PagesUntilTotal(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") != "key" || q.Get("area") != "01" || q.Get("out") != "json" {
			t.Errorf("query = %v", q)
		}
		pages.Add(1)
		page, _ := strconv.Atoi(q.Get("page"))
		switch page {
		case 1:
			fmt.Fprintf(w, `{"RESULT":{"TOTAL":3,"OIL":[%s,%s]}}`, stationJSON("A1"), stationJSON("A2"))
		default:
			fmt.Fprintf(w, `{"RESULT":{"TOTAL":3,"OIL":[%s]}}`, stationJSON("A3"))
		}
	}))
	defer srv.Close()

	c, err := New(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.pageSize = 2

	recs, calls, err := c.FetchRegion(context.Background(), "key", "01")
	if err != nil {
		t.Fatalf("FetchRegion: %v", err)
	}
	if calls != 2 || pages.Load() != 2 || len(recs) != 3 {
		t.Fatalf("calls=%d pages=%d recs=%d", calls, pages.Load(), len(recs))
	}
	r := recs[0]
	if r.ExternalID != "A1" || r.Name != "강남주유소" || r.Brand != "SK에너지" || r.Region != "01" {
		t.Fatalf("record = %+v", r)
	}
	if r.Fuel.Gasoline != 1689 || r.Fuel.Diesel != 1549 || r.Fuel.Premium != 0 {
		t.Fatalf("prices = %+v", r.Fuel)
	}
}

func TestFetchRegion_FailingPageKeepsEarlierRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"RESULT":{"TOTAL":4,"OIL":[%s,%s]}}`, stationJSON("A1"), stationJSON("A2"))
	}))
	defer srv.Close()

	c, _ := New(srv.Client(), srv.URL)
	c.pageSize = 2
	recs, calls, err := c.FetchRegion(context.Background(), "key", "02")
	if !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("err = %v", err)
	}
	if len(recs) != 2 || calls != 2 {
		t.Fatalf("recs=%d calls=%d", len(recs), calls)
	}
}

func TestRegions_ProvinceCodes(t *testing.T) {
	c, _ := New(http.DefaultClient, "http://example.invalid")
	got := c.Regions()
	if len(got) != 17 || got[0] != "01" {
		t.Fatalf("regions = %v", got)
	}
	got[0] = "zz"
	if c.Regions()[0] != "01" {
		t.Fatalf("Regions exposes internal slice")
	}
}

func TestFetchRegion_MissingKey(t *testing.T) {
	c, _ := New(http.DefaultClient, "http://example.invalid")
	if _, _, err := c.FetchRegion(context.Background(), "", "01"); !errors.Is(err, model.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestNormalize_DropsCoordinatesOutsideKorea(t *testing.T) {
	for _, s := range []station{
		{UniID: "Z0", Lat: 0, Lng: 0},
		{UniID: "Z1", Lat: 59.3, Lng: 18.0},
		{UniID: "", Lat: 37.5, Lng: 127.0},
	} {
		if _, ok := normalize(s, "01"); ok {
			t.Fatalf("%+v should be dropped", s)
		}
	}
	if _, ok := normalize(station{UniID: "A1", Lat: 37.5, Lng: 127.0}, "01"); !ok {
		t.Fatal("in-range station dropped")
	}
}
