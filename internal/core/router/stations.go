package router

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	mylog "github.com/mohammed-shakir/route-poi-cache/internal/logger"
	"github.com/mohammed-shakir/route-poi-cache/internal/stations"
)

type StationService interface {
	Kind() string
	Status(ctx context.Context) stations.Status
	Nearby(ctx context.Context, at model.Coordinate, radiusM float64) []stations.NearbyStation
	MatchBatch(ctx context.Context, queries []stations.MatchQuery) []*model.StationRecord
	Refresh(ctx context.Context, apiKey string, regions []string) (stations.RefreshResult, error)
	BuildGridFromRedis(ctx context.Context) (stations.GridStats, error)
	ErrorCount(ctx context.Context) int64
}

// Station pairs a dataset with the provider key its refresh needs.
type Station struct {
	Service StationService
	APIKey  string
}

const defaultNearbyRadiusM = 1000

func (a *API) station(w http.ResponseWriter, r *http.Request) (StationService, context.Context, bool) {
	kind := chi.URLParam(r, "kind")
	st, ok := a.stations[kind]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp{Error: fmt.Sprintf("unknown station dataset %q", kind)})
		return nil, nil, false
	}
	return st.Service, mylog.WithDataset(r.Context(), kind), true
}

type statusResp struct {
	Kind string `json:"kind"`
	stations.Status
	ErrorsThisHour int64 `json:"errorsThisHour"`
}

func (a *API) handleStationStatus(w http.ResponseWriter, r *http.Request) {
	svc, ctx, ok := a.station(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResp{Kind: svc.Kind(), Status: svc.Status(ctx), ErrorsThisHour: svc.ErrorCount(ctx)})
}

type nearbyResp struct {
	Stations []stations.NearbyStation `json:"stations"`
}

func (a *API) handleStationNearby(w http.ResponseWriter, r *http.Request) {
	svc, ctx, ok := a.station(w, r)
	if !ok {
		return
	}
	in, err := parseNearby(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	found := svc.Nearby(ctx, in.model(), in.RadiusM)
	if found == nil {
		found = []stations.NearbyStation{}
	}
	writeJSON(w, http.StatusOK, nearbyResp{Stations: found})
}

func parseNearby(r *http.Request) (nearbyReq, error) {
	q := r.URL.Query()
	var in nearbyReq
	var err error
	if in.Lat, err = strconv.ParseFloat(q.Get("lat"), 64); err != nil {
		return in, fmt.Errorf("%w: lat: %w", errInvalid, err)
	}
	if in.Lng, err = strconv.ParseFloat(q.Get("lng"), 64); err != nil {
		return in, fmt.Errorf("%w: lng: %w", errInvalid, err)
	}
	in.RadiusM = defaultNearbyRadiusM
	if raw := q.Get("radius"); raw != "" {
		if in.RadiusM, err = strconv.ParseFloat(raw, 64); err != nil {
			return in, fmt.Errorf("%w: radius: %w", errInvalid, err)
		}
	}
	return in, check(in)
}

type matchResp struct {
	Matches []*model.StationRecord `json:"matches"`
}

func (a *API) handleStationMatch(w http.ResponseWriter, r *http.Request) {
	svc, ctx, ok := a.station(w, r)
	if !ok {
		return
	}
	var in matchReq
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	qs := make([]stations.MatchQuery, len(in.Queries))
	for i, q := range in.Queries {
		qs[i] = stations.MatchQuery{Name: q.Name, Coord: q.model()}
	}
	writeJSON(w, http.StatusOK, matchResp{Matches: svc.MatchBatch(ctx, qs)})
}

func (a *API) handleStationRefresh(w http.ResponseWriter, r *http.Request) {
	svc, ctx, ok := a.station(w, r)
	if !ok {
		return
	}
	var in refreshReq
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := svc.Refresh(ctx, a.stations[svc.Kind()].APIKey, in.Regions)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGridRebuild(w http.ResponseWriter, r *http.Request) {
	svc, ctx, ok := a.station(w, r)
	if !ok {
		return
	}
	stats, err := svc.BuildGridFromRedis(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
