// Package ranker orders final candidates by rating, review volume, detour
// and, for fuel, price.
package ranker

import (
	"math"
	"sort"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

type Weights struct {
	// NeutralRating stands in for a missing rating so unrated places are
	// not buried under rated ones.
	NeutralRating float64
	DecayRate     float64
	// FuelBonusPerWon is added per won a station is cheaper than
	// ReferencePrice (and subtracted per won it is dearer).
	FuelBonusPerWon float64
	ReferencePrice  int
}

func DefaultWeights() Weights {
	return Weights{NeutralRating: 3.5, DecayRate: 0.1, FuelBonusPerWon: 0.02, ReferencePrice: 1700}
}

type Ranker struct {
	w Weights
}

func New(w Weights) *Ranker {
	def := DefaultWeights()
	if w.NeutralRating <= 0 {
		w.NeutralRating = def.NeutralRating
	}
	if w.DecayRate < 0 {
		w.DecayRate = def.DecayRate
	}
	return &Ranker{w: w}
}

// Score = rating^1.5 * (log10(reviews+1)+1) * exp(-detour*decay) + fuelBonus
func (r *Ranker) Score(p model.Place) float64 {
	rating := r.w.NeutralRating
	if p.Rating != nil {
		rating = math.Max(0, *p.Rating)
	}
	reviews := 0
	if p.ReviewCount != nil && *p.ReviewCount > 0 {
		reviews = *p.ReviewCount
	}
	base := math.Pow(rating, 1.5) *
		(math.Log10(float64(reviews)+1) + 1) *
		math.Exp(-float64(p.DetourMinutes)*r.w.DecayRate)
	return base + r.fuelBonus(p)
}

func (r *Ranker) fuelBonus(p model.Place) float64 {
	if p.Category != model.CategoryGasStation || p.Price == nil || r.w.ReferencePrice <= 0 {
		return 0
	}
	return float64(r.w.ReferencePrice-*p.Price) * r.w.FuelBonusPerWon
}

// Rank scores every place and sorts descending. Equal scores keep their
// input order.
func (r *Ranker) Rank(places []model.Place) []model.Place {
	out := append([]model.Place(nil), places...)
	for i := range out {
		out[i].Score = r.Score(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
