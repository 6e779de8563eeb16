// Package kakaonavi requests driving routes, optionally through waypoints,
// from the Kakao Mobility directions API.
package kakaonavi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream"
)

const (
	name          = "kakao_navi"
	pathDirection = "/v1/directions"
	MaxWaypoints  = 5
)

var (
	ErrTooManyWaypoints = fmt.Errorf("at most %d waypoints", MaxWaypoints)
	// ErrNoRoute is the provider answering with a non-zero result code.
	ErrNoRoute = errors.New("no route")
)

type Client struct {
	http *http.Client
	base *url.URL
	key  string
	memo *expirable.LRU[string, model.RouteSummary]
}

type Option func(*Client)

// WithMemo caches routes by their exact coordinate sequence.
func WithMemo(size int, ttl time.Duration) Option {
	return func(c *Client) {
		if size > 0 {
			c.memo = expirable.NewLRU[string, model.RouteSummary](size, nil, ttl)
		}
	}
}

func New(httpClient *http.Client, baseURL, restKey string, opts ...Option) (*Client, error) {
	if restKey == "" {
		return nil, fmt.Errorf("kakao rest key: %w", model.ErrNotConfigured)
	}
	u, err := upstream.ParseBase(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{http: httpClient, base: u, key: restKey}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type summary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

type road struct {
	Vertexes []float64 `json:"vertexes"`
}

type section struct {
	Roads []road `json:"roads"`
}

type route struct {
	ResultCode int       `json:"result_code"`
	ResultMsg  string    `json:"result_msg"`
	Summary    summary   `json:"summary"`
	Sections   []section `json:"sections"`
}

type response struct {
	Routes []route `json:"routes"`
}

// Route returns the recommended route's distance, duration and polyline.
func (c *Client) Route(ctx context.Context, origin, dest model.Coordinate, waypoints []model.Coordinate) (model.RouteSummary, error) {
	if len(waypoints) > MaxWaypoints {
		return model.RouteSummary{}, ErrTooManyWaypoints
	}

	coords := make([]string, 0, len(waypoints)+2)
	coords = append(coords, origin.String())
	for _, w := range waypoints {
		coords = append(coords, w.String())
	}
	coords = append(coords, dest.String())

	key := keys.Route(coords...)
	if c.memo != nil {
		if rs, ok := c.memo.Get(key); ok {
			return rs, nil
		}
	}

	params := url.Values{}
	params.Set("origin", origin.String())
	params.Set("destination", dest.String())
	if len(waypoints) > 0 {
		params.Set("waypoints", strings.Join(coords[1:len(coords)-1], "|"))
	}
	params.Set("priority", "RECOMMEND")

	var resp response
	hdr := http.Header{"Authorization": {"KakaoAK " + c.key}}
	if err := upstream.GetJSON(ctx, c.http, name, c.base, pathDirection, params, hdr, &resp); err != nil {
		return model.RouteSummary{}, err
	}
	if len(resp.Routes) == 0 {
		return model.RouteSummary{}, fmt.Errorf("%s: empty routes: %w", name, model.ErrUpstream)
	}
	r := resp.Routes[0]
	if r.ResultCode != 0 {
		return model.RouteSummary{}, fmt.Errorf("%s: result %d %s: %w: %w", name, r.ResultCode, r.ResultMsg, ErrNoRoute, model.ErrUpstream)
	}

	rs := model.RouteSummary{
		DistanceMeters:  r.Summary.Distance,
		DurationSeconds: r.Summary.Duration,
		Polyline:        polyline(r.Sections),
	}
	if c.memo != nil {
		c.memo.Add(key, rs)
	}
	return rs, nil
}

// vertexes come flattened as [x0, y0, x1, y1, ...]
func polyline(sections []section) model.Polyline {
	var out model.Polyline
	for _, s := range sections {
		for _, rd := range s.Roads {
			for i := 0; i+1 < len(rd.Vertexes); i += 2 {
				p := model.Coordinate{Lat: rd.Vertexes[i+1], Lng: rd.Vertexes[i]}
				if n := len(out); n > 0 && out[n-1] == p {
					continue
				}
				out = append(out, p)
			}
		}
	}
	return out
}
