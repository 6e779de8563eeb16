// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String representation matching the "lng,lat" order routing providers expect
func (c Coordinate) String() string {
	return fmt.Sprintf("%.7f,%.7f", c.Lng, c.Lat)
}

func (c Coordinate) IsFinite() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) &&
		!math.IsInf(c.Lat, 0) && !math.IsInf(c.Lng, 0)
}

// Korean-peninsula bounds accepted at the service edge.
const (
	MinLat = 33.0
	MaxLat = 39.0
	MinLng = 124.0
	MaxLng = 132.0
)

func (c Coordinate) InKorea() bool {
	return c.Lat >= MinLat && c.Lat <= MaxLat && c.Lng >= MinLng && c.Lng <= MaxLng
}

// Polyline is read-only once built.
type Polyline []Coordinate

type Category string

const (
	CategoryGasStation  Category = "gas_station"
	CategoryEVCharger   Category = "ev_charger"
	CategoryRestArea    Category = "rest_area"
	CategoryCafe        Category = "cafe"
	CategoryRestaurant  Category = "restaurant"
	CategoryConvenience Category = "convenience"
	CategoryParking     Category = "parking"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryGasStation, CategoryEVCharger, CategoryRestArea, CategoryCafe,
		CategoryRestaurant, CategoryConvenience, CategoryParking:
		return true
	}
	return false
}

// Place is one point of interest found near a route. ID is the map provider's
// identifier and never coincides with a StationRecord.ExternalID.
type Place struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Category          Category       `json:"category"`
	CategoryCode      string         `json:"categoryCode,omitempty"`
	Coord             Coordinate     `json:"coordinates"`
	Address           string         `json:"address,omitempty"`
	DistanceFromRoute float64        `json:"distanceFromRoute"`
	DetourMinutes     int            `json:"detourMinutes"`
	DetourDistance    float64        `json:"detourDistance"`
	DetourEstimated   bool           `json:"detourEstimated,omitempty"`
	Rating            *float64       `json:"rating,omitempty"`
	ReviewCount       *int           `json:"reviewCount,omitempty"`
	Price             *int           `json:"price,omitempty"`
	Brand             string         `json:"brand,omitempty"`
	Charger           *ChargerStatus `json:"charger,omitempty"`
	Score             float64        `json:"score,omitempty"`
}

// Ranked reports whether the detour step has filled the place.
func (p Place) Ranked() bool {
	return p.DetourMinutes != 0 || p.DetourDistance != 0
}

type FuelPrices struct {
	Gasoline int `json:"gasoline,omitempty"`
	Premium  int `json:"premium,omitempty"`
	Diesel   int `json:"diesel,omitempty"`
	LPG      int `json:"lpg,omitempty"`
}

type FuelProduct string

const (
	FuelGasoline FuelProduct = "gasoline"
	FuelPremium  FuelProduct = "premium"
	FuelDiesel   FuelProduct = "diesel"
	FuelLPG      FuelProduct = "lpg"
)

// Price returns 0 when the station does not sell the product.
func (f FuelPrices) Price(p FuelProduct) int {
	switch p {
	case FuelPremium:
		return f.Premium
	case FuelDiesel:
		return f.Diesel
	case FuelLPG:
		return f.LPG
	default:
		return f.Gasoline
	}
}

type ChargerStatus struct {
	Total     int      `json:"total"`
	Available int      `json:"available"`
	Fast      int      `json:"fast"`
	Types     []string `json:"types,omitempty"`
	Operator  string   `json:"operator,omitempty"`
}

// StationRecord is keyed by the station provider's own ID.
type StationRecord struct {
	ExternalID string         `json:"id"`
	Name       string         `json:"name"`
	Coord      Coordinate     `json:"coord"`
	Region     string         `json:"region"`
	Address    string         `json:"address,omitempty"`
	Brand      string         `json:"brand,omitempty"`
	Fuel       *FuelPrices    `json:"fuel,omitempty"`
	EV         *ChargerStatus `json:"ev,omitempty"`
}

type RouteSummary struct {
	DistanceMeters  float64  `json:"distance"`
	DurationSeconds float64  `json:"duration"`
	Polyline        Polyline `json:"-"`
}

// PlaceQuery is one nearby search. Either Keyword or CategoryCode may be
// empty, not both.
type PlaceQuery struct {
	Keyword      string     `json:"keyword,omitempty"`
	CategoryCode string     `json:"categoryCode,omitempty"`
	Center       Coordinate `json:"center"`
	RadiusM      int        `json:"radius"`
	Page         int        `json:"page,omitempty"`
}
