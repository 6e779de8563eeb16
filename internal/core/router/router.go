// Package router holds the HTTP handlers in front of the candidate selector,
// the ranker and the station datasets.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/route-poi-cache/internal/candidates"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/middleware"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	mylog "github.com/mohammed-shakir/route-poi-cache/internal/logger"
)

const (
	maxBodyBytes       = 4 << 20
	defaultRecommended = 10
)

type CandidateSelector interface {
	Select(ctx context.Context, req candidates.Request) (candidates.Result, error)
}

type Ranker interface {
	Rank(places []model.Place) []model.Place
}

type API struct {
	log          *slog.Logger
	selector     CandidateSelector
	routes       candidates.Router
	ranker       Ranker
	stations     map[string]Station
	refreshToken string
}

// New wires the handlers. routes may be nil: recommendations then require a
// polyline in the request.
func New(log *slog.Logger, sel CandidateSelector, routes candidates.Router, rk Ranker, refreshToken string, sts ...Station) *API {
	if log == nil {
		log = slog.Default()
	}
	a := &API{log: log, selector: sel, routes: routes, ranker: rk, refreshToken: refreshToken, stations: map[string]Station{}}
	for _, s := range sts {
		a.stations[s.Service.Kind()] = s
	}
	return a
}

func (a *API) Mount(r chi.Router) {
	r.Post("/v1/route/candidates", a.handleCandidates)
	r.Post("/v1/recommendations", a.handleRecommendations)

	r.Route("/v1/stations/{kind}", func(r chi.Router) {
		r.Get("/status", a.handleStationStatus)
		r.Get("/nearby", a.handleStationNearby)
		r.Post("/match", a.handleStationMatch)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(a.refreshToken))
			r.Post("/refresh", a.handleStationRefresh)
			r.Post("/grid/rebuild", a.handleGridRebuild)
		})
	})
}

func (a *API) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var in candidatesReq
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	ctx := mylog.WithCategory(r.Context(), in.Category)
	res, err := a.selector.Select(ctx, candidates.Request{
		Polyline:            polyline(in.Polyline),
		Category:            model.Category(in.Category),
		OriginalDurationSec: in.OriginalDuration,
		OriginalDistanceM:   in.OriginalDistance,
		MaxDetourMinutes:    in.MaxDetourMinutes,
		Fuel:                model.FuelProduct(in.Fuel),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type recommendResp struct {
	Route  *model.RouteSummary    `json:"route,omitempty"`
	Places []model.Place          `json:"places"`
	Total  int                    `json:"total"`
	Params candidates.RouteParams `json:"params"`
}

func (a *API) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var in recommendReq
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	ctx := mylog.WithCategory(r.Context(), in.Category)

	req := candidates.Request{
		Polyline:            polyline(in.Polyline),
		Category:            model.Category(in.Category),
		OriginalDurationSec: in.OriginalDuration,
		OriginalDistanceM:   in.OriginalDistance,
		MaxDetourMinutes:    in.MaxDetourMinutes,
		Fuel:                model.FuelProduct(in.Fuel),
	}
	var route *model.RouteSummary
	if len(req.Polyline) == 0 {
		if a.routes == nil {
			a.fail(w, r, fmt.Errorf("routing: %w", model.ErrNotConfigured))
			return
		}
		sum, err := a.routes.Route(ctx, in.Origin.model(), in.Destination.model(), nil)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		route = &sum
		req.Polyline = sum.Polyline
		req.OriginalDurationSec = sum.DurationSeconds
		req.OriginalDistanceM = sum.DistanceMeters
	}

	res, err := a.selector.Select(ctx, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ranked := res.Places
	if a.ranker != nil {
		ranked = a.ranker.Rank(res.Places)
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultRecommended
	}
	out := recommendResp{Route: route, Total: len(ranked), Params: res.Params}
	out.Places = ranked[:min(limit, len(ranked))]
	writeJSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body: %w", errInvalid, err)
	}
	return check(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalid),
		errors.Is(err, model.ErrInvalidRoute),
		errors.Is(err, model.ErrInvalidCoordinate),
		errors.Is(err, model.ErrInvalidCategory):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRefreshRunning):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotConfigured), errors.Is(err, model.ErrUpstream):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail maps domain sentinels to status codes. Only unexpected errors are
// logged above debug; the rest are the caller's problem.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	lvl := slog.LevelDebug
	if code >= http.StatusInternalServerError {
		lvl = slog.LevelWarn
	}
	a.log.Log(r.Context(), lvl, "request failed", "path", r.URL.Path, "status", code, "err", err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, code, errorResp{Error: msg, RequestID: mylog.RequestID(r.Context())})
}
