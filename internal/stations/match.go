package stations

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/geo"
	"github.com/mohammed-shakir/route-poi-cache/internal/gridindex"
)

const (
	similarityEps = 1e-9
	distanceEpsKm = 1e-6
)

// normalizeName folds case, composes Hangul jamo and drops whitespace and
// punctuation so "SK 강남 주유소" and "SK강남주유소" compare equal.
func normalizeName(s string) string {
	s = norm.NFC.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// nameSimilarity is 1 - editDistance/maxLen over runes of normalised names.
// One name containing the other scores at least threshold.
func nameSimilarity(a, b string, threshold float64) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	sim := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(max(la, lb))
	if min(la, lb) >= 2 && (strings.Contains(a, b) || strings.Contains(b, a)) {
		sim = math.Max(sim, threshold)
	}
	return sim
}

type matcher struct {
	radiusKm     float64
	threshold    float64
	searchRadius int
}

// match resolves one map-provider place against the grid. Order of
// preference: best name match inside the radius, then the sole record inside
// the radius. Anything ambiguous is nil.
func (m matcher) match(ix *gridindex.Index, name string, at model.Coordinate) *model.StationRecord {
	if ix == nil || !at.IsFinite() {
		return nil
	}

	type near struct {
		rec model.StationRecord
		km  float64
	}
	// the configured ring is a floor; fine grids need more cells to reach radiusKm
	cells := max(m.searchRadius, ix.RingFor(at, m.radiusKm))
	var inRadius []near
	for _, r := range ix.Lookup(at, cells) {
		if d := geo.HaversineKm(at, r.Coord); d <= m.radiusKm {
			inRadius = append(inRadius, near{r, d})
		}
	}
	if len(inRadius) == 0 {
		return nil
	}

	if q := normalizeName(name); q != "" {
		bestIdx, bestSim, tied := -1, 0.0, false
		for i, n := range inRadius {
			sim := nameSimilarity(q, normalizeName(n.rec.Name), m.threshold)
			if sim < m.threshold {
				continue
			}
			switch {
			case bestIdx < 0 || sim > bestSim+similarityEps:
				bestIdx, bestSim, tied = i, sim, false
			case math.Abs(sim-bestSim) <= similarityEps:
				d, bd := n.km, inRadius[bestIdx].km
				switch {
				case d < bd-distanceEpsKm:
					bestIdx, tied = i, false
				case math.Abs(d-bd) <= distanceEpsKm:
					tied = true
				}
			}
		}
		if bestIdx >= 0 {
			if tied {
				return nil
			}
			r := inRadius[bestIdx].rec
			return &r
		}
	}

	if len(inRadius) == 1 {
		r := inRadius[0].rec
		return &r
	}
	return nil
}
