// Package kakaolocal searches places around a coordinate with the Kakao Local
// API (category and keyword search).
package kakaolocal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream"
)

const (
	name         = "kakao_local"
	pathCategory = "/v2/local/search/category.json"
	pathKeyword  = "/v2/local/search/keyword.json"

	MaxRadiusM = 20000
	PageSize   = 15
)

var errEmptyQuery = errors.New("keyword or category code required")

type Client struct {
	http *http.Client
	base *url.URL
	key  string
}

func New(httpClient *http.Client, baseURL, restKey string) (*Client, error) {
	if restKey == "" {
		return nil, fmt.Errorf("kakao rest key: %w", model.ErrNotConfigured)
	}
	u, err := upstream.ParseBase(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{http: httpClient, base: u, key: restKey}, nil
}

type meta struct {
	TotalCount    int  `json:"total_count"`
	PageableCount int  `json:"pageable_count"`
	IsEnd         bool `json:"is_end"`
}

type document struct {
	ID                string `json:"id"`
	PlaceName         string `json:"place_name"`
	CategoryName      string `json:"category_name"`
	CategoryGroupCode string `json:"category_group_code"`
	AddressName       string `json:"address_name"`
	RoadAddressName   string `json:"road_address_name"`
	X                 string `json:"x"`
	Y                 string `json:"y"`
	Distance          string `json:"distance"`
}

type response struct {
	Meta      meta       `json:"meta"`
	Documents []document `json:"documents"`
}

// Search returns one page of places sorted by distance from q.Center. The
// keyword endpoint is used whenever a keyword is given, narrowed by the
// category code when both are set.
func (c *Client) Search(ctx context.Context, q model.PlaceQuery) ([]model.Place, error) {
	kw := strings.TrimSpace(q.Keyword)
	if kw == "" && q.CategoryCode == "" {
		return nil, errEmptyQuery
	}

	params := url.Values{}
	params.Set("x", strconv.FormatFloat(q.Center.Lng, 'f', 7, 64))
	params.Set("y", strconv.FormatFloat(q.Center.Lat, 'f', 7, 64))
	params.Set("radius", strconv.Itoa(clampRadius(q.RadiusM)))
	params.Set("sort", "distance")
	params.Set("size", strconv.Itoa(PageSize))
	if q.Page > 1 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.CategoryCode != "" {
		params.Set("category_group_code", q.CategoryCode)
	}
	path := pathCategory
	if kw != "" {
		path = pathKeyword
		params.Set("query", kw)
	}

	var resp response
	hdr := http.Header{"Authorization": {"KakaoAK " + c.key}}
	if err := upstream.GetJSON(ctx, c.http, name, c.base, path, params, hdr, &resp); err != nil {
		return nil, err
	}

	out := make([]model.Place, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		p, ok := toPlace(d)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func clampRadius(r int) int {
	switch {
	case r <= 0:
		return 1000
	case r > MaxRadiusM:
		return MaxRadiusM
	}
	return r
}

func toPlace(d document) (model.Place, bool) {
	lng, errX := strconv.ParseFloat(d.X, 64)
	lat, errY := strconv.ParseFloat(d.Y, 64)
	if d.ID == "" || errX != nil || errY != nil {
		return model.Place{}, false
	}
	addr := d.RoadAddressName
	if addr == "" {
		addr = d.AddressName
	}
	return model.Place{
		ID:           d.ID,
		Name:         d.PlaceName,
		CategoryCode: d.CategoryGroupCode,
		Coord:        model.Coordinate{Lat: lat, Lng: lng},
		Address:      addr,
	}, true
}
