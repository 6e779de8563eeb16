// Package evcharger fetches EV charger status per province from the
// data.go.kr charger information service. The provider lists one row per
// charger; rows are folded into one record per station.
package evcharger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/upstream"
)

const (
	name            = "ev_charger"
	defaultPageSize = 9999
	maxPages        = 20
	statAvailable   = "2"
	resultOK        = "00"
)

// zcodes are the provider's province codes.
var zcodes = []string{
	"11", "26", "27", "28", "29", "30", "31", "36", "41",
	"43", "44", "45", "46", "47", "48", "50", "51",
}

// AC chargers; every other type has a DC fast connector.
var slowTypes = map[string]bool{"02": true, "07": true}

var typeLabels = map[string]string{
	"01": "DC차데모",
	"02": "AC완속",
	"03": "DC차데모+AC3상",
	"04": "DC콤보",
	"05": "DC차데모+DC콤보",
	"06": "DC차데모+AC3상+DC콤보",
	"07": "AC3상",
	"08": "DC콤보(완속)",
	"09": "NACS",
	"10": "DC콤보+NACS",
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

func (c *Client) Regions() []string { return append([]string(nil), zcodes...) }

type item struct {
	StatID    string `json:"statId"`
	StatNm    string `json:"statNm"`
	ChgerID   string `json:"chgerId"`
	ChgerType string `json:"chgerType"`
	Addr      string `json:"addr"`
	Lat       string `json:"lat"`
	Lng       string `json:"lng"`
	BusiNm    string `json:"busiNm"`
	Stat      string `json:"stat"`
	DelYn     string `json:"delYn"`
}

type response struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
	TotalCount int    `json:"totalCount"`
	Items      struct {
		Item []item `json:"item"`
	} `json:"items"`
}

// FetchRegion pages through one province and returns one record per station.
// On a failing page the stations folded so far are returned with the error.
func (c *Client) FetchRegion(ctx context.Context, apiKey, zcode string) ([]model.StationRecord, int, error) {
	if apiKey == "" {
		return nil, 0, fmt.Errorf("ev charger key: %w", model.ErrNotConfigured)
	}
	acc := newFolder(zcode)
	calls := 0
	for page := 1; page <= maxPages; page++ {
		params := url.Values{}
		params.Set("serviceKey", apiKey)
		params.Set("pageNo", strconv.Itoa(page))
		params.Set("numOfRows", strconv.Itoa(c.pageSize))
		params.Set("zcode", zcode)
		params.Set("dataType", "JSON")

		var resp response
		calls++
		if err := upstream.GetJSON(ctx, c.http, name, c.base, "", params, nil, &resp); err != nil {
			return acc.records(), calls, fmt.Errorf("zcode %s page %d: %w", zcode, page, err)
		}
		if resp.ResultCode != "" && resp.ResultCode != resultOK {
			return acc.records(), calls, fmt.Errorf("zcode %s page %d: result %s %s: %w",
				zcode, page, resp.ResultCode, resp.ResultMsg, model.ErrUpstream)
		}
		for _, it := range resp.Items.Item {
			acc.add(it)
		}
		if len(resp.Items.Item) < c.pageSize || page*c.pageSize >= resp.TotalCount {
			break
		}
	}
	return acc.records(), calls, nil
}

type folder struct {
	region string
	order  []string
	byID   map[string]*model.StationRecord
	types  map[string]map[string]struct{}
}

func newFolder(region string) *folder {
	return &folder{
		region: region,
		byID:   make(map[string]*model.StationRecord),
		types:  make(map[string]map[string]struct{}),
	}
}

func (f *folder) add(it item) {
	if it.StatID == "" || strings.EqualFold(it.DelYn, "Y") {
		return
	}
	r, ok := f.byID[it.StatID]
	if !ok {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(it.Lat), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(it.Lng), 64)
		// rows with unparsable or zero coordinates are dropped
		if errLat != nil || errLng != nil || !(model.Coordinate{Lat: lat, Lng: lng}).InKorea() {
			return
		}
		r = &model.StationRecord{
			ExternalID: it.StatID,
			Name:       strings.TrimSpace(it.StatNm),
			Coord:      model.Coordinate{Lat: lat, Lng: lng},
			Region:     f.region,
			Address:    it.Addr,
			Brand:      it.BusiNm,
			EV:         &model.ChargerStatus{Operator: it.BusiNm},
		}
		f.byID[it.StatID] = r
		f.types[it.StatID] = map[string]struct{}{}
		f.order = append(f.order, it.StatID)
	}
	r.EV.Total++
	if it.Stat == statAvailable {
		r.EV.Available++
	}
	if !slowTypes[it.ChgerType] {
		r.EV.Fast++
	}
	label := typeLabels[it.ChgerType]
	if label == "" {
		label = it.ChgerType
	}
	f.types[it.StatID][label] = struct{}{}
}

func (f *folder) records() []model.StationRecord {
	out := make([]model.StationRecord, 0, len(f.order))
	for _, id := range f.order {
		r := *f.byID[id]
		ev := *r.EV
		for t := range f.types[id] {
			ev.Types = append(ev.Types, t)
		}
		sort.Strings(ev.Types)
		r.EV = &ev
		out = append(out, r)
	}
	return out
}
