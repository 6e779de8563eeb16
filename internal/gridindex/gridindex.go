// Package gridindex buckets station records into fixed-precision lat/lng
// cells. The index is derived data: it is rebuilt wholesale from a dataset
// and never written back.
package gridindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/geo"
)

const (
	DefaultPrecision = 2
	MaxPrecision     = 6
	kmPerDegree      = 111.32
	floorEpsilon     = 1e-9
)

type cellIdx struct{ i, j int64 }

type Index struct {
	precision int
	scale     float64
	cells     map[cellIdx][]model.StationRecord
	records   int
}

func clampPrecision(p int) int {
	switch {
	case p < 0:
		return 0
	case p > MaxPrecision:
		return MaxPrecision
	}
	return p
}

func scaleFor(p int) float64 { return math.Pow10(p) }

func indexOf(c model.Coordinate, scale float64) cellIdx {
	return cellIdx{
		i: int64(math.Floor(c.Lat*scale + floorEpsilon)),
		j: int64(math.Floor(c.Lng*scale + floorEpsilon)),
	}
}

func keyOf(ix cellIdx, precision int, scale float64) string {
	return fmt.Sprintf("%.*f_%.*f", precision, float64(ix.i)/scale, precision, float64(ix.j)/scale)
}

// CellKey truncates c toward negative infinity at precision decimal digits and
// joins lat and lng, e.g. 37.5665,126.978 at precision 2 -> "37.56_126.97".
func CellKey(c model.Coordinate, precision int) string {
	p := clampPrecision(precision)
	s := scaleFor(p)
	return keyOf(indexOf(c, s), p, s)
}

// Build indexes records by cell. A later record with the same ExternalID
// replaces an earlier one, so each ID lands in exactly one cell.
func Build(records []model.StationRecord, precision int) *Index {
	p := clampPrecision(precision)
	ix := &Index{precision: p, scale: scaleFor(p), cells: make(map[cellIdx][]model.StationRecord)}

	byID := make(map[string]model.StationRecord, len(records))
	for _, r := range records {
		if !r.Coord.IsFinite() {
			continue
		}
		byID[r.ExternalID] = r
	}
	for _, r := range byID {
		c := indexOf(r.Coord, ix.scale)
		ix.cells[c] = append(ix.cells[c], r)
	}
	for c := range ix.cells {
		list := ix.cells[c]
		sort.Slice(list, func(a, b int) bool { return list[a].ExternalID < list[b].ExternalID })
	}
	ix.records = len(byID)
	return ix
}

func (ix *Index) Precision() int { return ix.precision }

func (ix *Index) CellCount() int {
	if ix == nil {
		return 0
	}
	return len(ix.cells)
}

func (ix *Index) RecordCount() int {
	if ix == nil {
		return 0
	}
	return ix.records
}

// Lookup returns the records in c's cell and in every cell up to radiusCells
// away in each direction, so points near a cell border still see neighbours.
func (ix *Index) Lookup(c model.Coordinate, radiusCells int) []model.StationRecord {
	if ix == nil || len(ix.cells) == 0 || !c.IsFinite() {
		return nil
	}
	if radiusCells < 0 {
		radiusCells = 0
	}
	return ix.ring(indexOf(c, ix.scale), int64(radiusCells), int64(radiusCells))
}

func (ix *Index) ring(center cellIdx, di, dj int64) []model.StationRecord {
	var out []model.StationRecord
	for i := center.i - di; i <= center.i+di; i++ {
		for j := center.j - dj; j <= center.j+dj; j++ {
			out = append(out, ix.cells[cellIdx{i, j}]...)
		}
	}
	return out
}

// span is how many cells north/south and east/west radiusKm reaches from c.
// Longitude cells narrow with latitude, so dj >= di.
func (ix *Index) span(c model.Coordinate, radiusKm float64) (di, dj int64) {
	cellKm := kmPerDegree / ix.scale
	di = int64(math.Ceil(radiusKm / cellKm))
	dj = di
	if lngCellKm := cellKm * math.Cos(c.Lat*math.Pi/180); lngCellKm > 0 {
		dj = int64(math.Ceil(radiusKm / lngCellKm))
	}
	return di, dj
}

// RingFor is the smallest Lookup radius, in cells, that covers every point
// within radiusKm of c.
func (ix *Index) RingFor(c model.Coordinate, radiusKm float64) int {
	if ix == nil || radiusKm <= 0 || !c.IsFinite() {
		return 0
	}
	di, dj := ix.span(c, radiusKm)
	return int(max(di, dj))
}

// Hit is a record with its distance from the query point.
type Hit struct {
	Record     model.StationRecord
	DistanceKm float64
}

// Within returns records within radiusKm of c, nearest first.
func (ix *Index) Within(c model.Coordinate, radiusKm float64) []Hit {
	if ix == nil || len(ix.cells) == 0 || !c.IsFinite() || radiusKm < 0 {
		return nil
	}
	di, dj := ix.span(c, radiusKm)
	var hits []Hit
	for _, r := range ix.ring(indexOf(c, ix.scale), di, dj) {
		if d := geo.HaversineKm(c, r.Coord); d <= radiusKm {
			hits = append(hits, Hit{Record: r, DistanceKm: d})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].DistanceKm < hits[b].DistanceKm })
	return hits
}

// Records returns every indexed record ordered by cell then ID.
func (ix *Index) Records() []model.StationRecord {
	if ix == nil {
		return nil
	}
	idx := make([]cellIdx, 0, len(ix.cells))
	for c := range ix.cells {
		idx = append(idx, c)
	}
	sort.Slice(idx, func(a, b int) bool {
		if idx[a].i != idx[b].i {
			return idx[a].i < idx[b].i
		}
		return idx[a].j < idx[b].j
	})
	out := make([]model.StationRecord, 0, ix.records)
	for _, c := range idx {
		out = append(out, ix.cells[c]...)
	}
	return out
}

// Partition groups records by CellKey at precision. Used to split a dataset
// into size-bounded cache keys.
func Partition(records []model.StationRecord, precision int) map[string][]model.StationRecord {
	out := make(map[string][]model.StationRecord)
	for _, r := range records {
		k := CellKey(r.Coord, precision)
		out[k] = append(out[k], r)
	}
	return out
}
