// Package geo holds the stateless distance and polyline helpers used by the
// candidate selector and the station caches.
package geo

import (
	"math"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

const EarthRadiusKm = 6371.0

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// HaversineKm returns the great-circle distance in kilometres.
func HaversineKm(a, b model.Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	s1 := math.Sin(dLat / 2)
	s2 := math.Sin(dLng / 2)
	h := s1*s1 + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*s2*s2
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Interpolate walks linearly in lat/lng space, not along the geodesic.
// Good enough for the sub-kilometre segments routing providers emit.
func Interpolate(a, b model.Coordinate, ratio float64) model.Coordinate {
	switch {
	case ratio <= 0:
		return a
	case ratio >= 1:
		return b
	}
	return model.Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*ratio,
		Lng: a.Lng + (b.Lng-a.Lng)*ratio,
	}
}

// LengthKm is the sum of haversine distances between consecutive points.
func LengthKm(points []model.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1], points[i])
	}
	return total
}

// CumulativeKm returns, per vertex, the distance travelled from the first vertex.
func CumulativeKm(points []model.Coordinate) []float64 {
	out := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		out[i] = out[i-1] + HaversineKm(points[i-1], points[i])
	}
	return out
}

// MinResampleKm is the smallest spacing Resample honours (1 mm). Finer
// intervals are treated as "no resampling".
const MinResampleKm = 1e-6

// Resample emits a point every intervalKm of travelled distance. First and
// last input points are always kept. Segments longer than the interval are
// split with Interpolate so sparse polylines still get evenly spaced samples.
func Resample(points []model.Coordinate, intervalKm float64) []model.Coordinate {
	if len(points) < 2 {
		return points
	}
	if intervalKm < MinResampleKm || math.IsNaN(intervalKm) {
		out := make([]model.Coordinate, len(points))
		copy(out, points)
		return out
	}

	out := []model.Coordinate{points[0]}
	acc := 0.0
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		seg := HaversineKm(prev, cur)
		for seg > 0 && acc+seg >= intervalKm {
			need := intervalKm - acc
			p := Interpolate(prev, cur, need/seg)
			out = append(out, p)
			prev = p
			rest := seg - need
			if rest >= seg {
				// need vanished against seg; stepping cannot make progress
				break
			}
			seg = rest
			acc = 0
		}
		acc += seg
	}

	last := points[len(points)-1]
	if tail := out[len(out)-1]; tail != last {
		// drop a float-noise sample sitting on top of the end point
		if len(out) > 1 && HaversineKm(tail, last) < 1e-6 {
			out[len(out)-1] = last
		} else {
			out = append(out, last)
		}
	}
	return out
}

// NearestVertex returns the index of the polyline vertex closest to p and the
// distance to it in kilometres. Returns -1 for an empty polyline.
//
// This is a vertex approximation, not a projection onto segments: for sparse
// polylines the reported distance overestimates the true distance to the road.
func NearestVertex(polyline []model.Coordinate, p model.Coordinate) (int, float64) {
	best, bestKm := -1, math.Inf(1)
	for i, v := range polyline {
		if d := HaversineKm(v, p); d < bestKm {
			best, bestKm = i, d
		}
	}
	return best, bestKm
}

// NearestDistanceKm is the minimum haversine distance from p to any vertex.
func NearestDistanceKm(polyline []model.Coordinate, p model.Coordinate) float64 {
	_, d := NearestVertex(polyline, p)
	return d
}

// ValidPolyline reports whether the route can be sampled at all.
func ValidPolyline(points []model.Coordinate) bool {
	if len(points) < 2 {
		return false
	}
	for _, p := range points {
		if !p.IsFinite() {
			return false
		}
	}
	return true
}
