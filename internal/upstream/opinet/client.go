// Package opinet fetches station fuel prices per province from the Opinet
// open API and normalises them into station records.
package opinet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream"
)

const (
	name            = "opinet"
	defaultPageSize = 500
	maxPages        = 40
)

// Area codes are the provider's two-digit province codes.
var areaCodes = []string{
	"01", "02", "03", "04", "05", "06", "07", "08", "09", "10",
	"11", "14", "15", "16", "17", "18", "19",
}

var brands = map[string]string{
	"SKE": "SK에너지",
	"GSC": "GS칼텍스",
	"HDO": "현대오일뱅크",
	"SOL": "S-OIL",
	"RTE": "자영알뜰",
	"RTX": "고속도로알뜰",
	"NHO": "농협알뜰",
	"ETC": "자가상표",
	"E1G": "E1",
	"SKG": "SK가스",
}

type Client struct {
	http     *http.Client
	base     *url.URL
	pageSize int
}

func New(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := upstream.ParseBase(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{http: httpClient, base: u, pageSize: defaultPageSize}, nil
}

func (c *Client) Regions() []string { return append([]string(nil), areaCodes...) }

type price struct {
	ProdCD string  `json:"PRODCD"`
	Price  float64 `json:"PRICE"`
}

type station struct {
	UniID    string  `json:"UNI_ID"`
	Name     string  `json:"OS_NM"`
	PollDiv  string  `json:"POLL_DIV_CD"`
	NewAddr  string  `json:"NEW_ADR"`
	VanAddr  string  `json:"VAN_ADR"`
	Lat      float64 `json:"LAT"`
	Lng      float64 `json:"LNG"`
	OilPrice []price `json:"OIL_PRICE"`
}

type response struct {
	Result struct {
		Total int       `json:"TOTAL"`
		Oil   []station `json:"OIL"`
	} `json:"RESULT"`
}

// FetchRegion pages through one area. Records fetched before a failing page
// are returned together with the error.
func (c *Client) FetchRegion(ctx context.Context, apiKey, area string) ([]model.StationRecord, int, error) {
	if apiKey == "" {
		return nil, 0, fmt.Errorf("opinet key: %w", model.ErrNotConfigured)
	}
	var out []model.StationRecord
	calls := 0
	for page := 1; page <= maxPages; page++ {
		params := url.Values{}
		params.Set("code", apiKey)
		params.Set("out", "json")
		params.Set("area", area)
		params.Set("page", strconv.Itoa(page))
		params.Set("rows", strconv.Itoa(c.pageSize))

		var resp response
		calls++
		if err := upstream.GetJSON(ctx, c.http, name, c.base, "", params, nil, &resp); err != nil {
			return out, calls, fmt.Errorf("area %s page %d: %w", area, page, err)
		}
		for _, s := range resp.Result.Oil {
			if r, ok := normalize(s, area); ok {
				out = append(out, r)
			}
		}
		seen := (page-1)*c.pageSize + len(resp.Result.Oil)
		if len(resp.Result.Oil) < c.pageSize || seen >= resp.Result.Total {
			break
		}
	}
	return out, calls, nil
}

func normalize(s station, area string) (model.StationRecord, bool) {
	if s.UniID == "" || !(model.Coordinate{Lat: s.Lat, Lng: s.Lng}).InKorea() {
		return model.StationRecord{}, false
	}
	fp := &model.FuelPrices{}
	for _, p := range s.OilPrice {
		v := int(p.Price)
		switch strings.TrimSpace(p.ProdCD) {
		case "B027":
			fp.Gasoline = v
		case "B034":
			fp.Premium = v
		case "D047":
			fp.Diesel = v
		case "K015":
			fp.LPG = v
		}
	}
	addr := s.NewAddr
	if addr == "" {
		addr = s.VanAddr
	}
	brand := brands[s.PollDiv]
	if brand == "" {
		brand = s.PollDiv
	}
	return model.StationRecord{
		ExternalID: s.UniID,
		Name:       strings.TrimSpace(s.Name),
		Coord:      model.Coordinate{Lat: s.Lat, Lng: s.Lng},
		Region:     area,
		Address:    addr,
		Brand:      brand,
		Fuel:       fp,
	}, true
}
