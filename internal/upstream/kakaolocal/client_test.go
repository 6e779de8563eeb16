package kakaolocal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

const categoryReply = `{
 "meta":{"total_count":2,"pageable_count":2,"is_end":true},
 "documents":[
  {"id":"101","place_name":"SK에너지 강남주유소","category_group_code":"OL7","address_name":"서울 강남구 역삼동 1","road_address_name":"서울 강남구 테헤란로 1","x":"127.0276","y":"37.4979","distance":"120"},
  {"id":"","place_name":"broken","x":"x","y":"y"}
 ]}`

func TestSearch_CategoryEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		q := r.URL.Query()
		if q.Get("category_group_code") != "OL7" || q.Get("radius") != "1000" || q.Get("sort") != "distance" {
			t.Errorf("query = %v", q)
		}
		if q.Get("x") != "127.0000000" || q.Get("y") != "37.5000000" {
			t.Errorf("coords = %s,%s", q.Get("x"), q.Get("y"))
		}
		_, _ = w.Write([]byte(categoryReply))
	}))
	defer srv.Close()

	c, err := New(srv.Client(), srv.URL, "rest-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	places, err := c.Search(context.Background(), model.PlaceQuery{
		CategoryCode: "OL7", Center: model.Coordinate{Lat: 37.5, Lng: 127.0}, RadiusM: 1000,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotPath != pathCategory || gotAuth != "KakaoAK rest-key" {
		t.Fatalf("path=%s auth=%s", gotPath, gotAuth)
	}
	if len(places) != 1 {
		t.Fatalf("places = %+v", places)
	}
	p := places[0]
	if p.ID != "101" || p.Coord.Lat != 37.4979 || p.Address != "서울 강남구 테헤란로 1" || p.CategoryCode != "OL7" {
		t.Fatalf("place = %+v", p)
	}
}

func TestSearch_KeywordEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathKeyword || r.URL.Query().Get("query") != "휴게소" {
			t.Errorf("request = %s", r.URL)
		}
		if r.URL.Query().Get("radius") != "20000" {
			t.Errorf("radius not clamped: %s", r.URL.Query().Get("radius"))
		}
		_, _ = w.Write([]byte(`{"meta":{},"documents":[]}`))
	}))
	defer srv.Close()

	c, _ := New(srv.Client(), srv.URL, "k")
	if _, err := c.Search(context.Background(), model.PlaceQuery{Keyword: "휴게소", RadiusM: 50000}); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	c, _ := New(http.DefaultClient, "http://example.invalid", "k")
	if _, err := c.Search(context.Background(), model.PlaceQuery{}); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestNew_MissingKey(t *testing.T) {
	if _, err := New(http.DefaultClient, "http://example.invalid", ""); !errors.Is(err, model.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestSearch_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c, _ := New(srv.Client(), srv.URL, "bad")
	if _, err := c.Search(context.Background(), model.PlaceQuery{CategoryCode: "CE7"}); !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("err = %v", err)
	}
}
