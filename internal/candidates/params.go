package candidates

import (
	"math"
	"strings"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

// RouteParams keeps the number of nearby searches roughly flat: longer
// routes search wider around sparser sample points.
type RouteParams struct {
	Bucket           string  `json:"bucket"`
	RadiusM          int     `json:"radius"`
	SampleIntervalKm float64 `json:"sampleIntervalKm"`
}

var routeBuckets = []struct {
	upToKm float64
	params RouteParams
}{
	{30, RouteParams{Bucket: "<30km", RadiusM: 500, SampleIntervalKm: 1}},
	{100, RouteParams{Bucket: "30-100km", RadiusM: 1000, SampleIntervalKm: 2}},
	{300, RouteParams{Bucket: "100-300km", RadiusM: 2000, SampleIntervalKm: 5}},
	{math.Inf(1), RouteParams{Bucket: ">=300km", RadiusM: 3000, SampleIntervalKm: 10}},
}

// ParamsFor picks the bucket for a route of lengthKm. Bucket upper bounds
// are exclusive.
func ParamsFor(lengthKm float64) RouteParams {
	for _, b := range routeBuckets {
		if lengthKm < b.upToKm {
			return b.params
		}
	}
	return routeBuckets[len(routeBuckets)-1].params
}

// DetourParams drive the distance-based detour estimate used when the
// routing provider cannot be asked.
type DetourParams struct {
	RoadFactor  float64
	SpeedKmh    float64
	OverheadMin float64
}

func DefaultDetourParams() DetourParams {
	return DetourParams{RoadFactor: 1.4, SpeedKmh: 40, OverheadMin: 3}
}

func (d DetourParams) withDefaults() DetourParams {
	def := DefaultDetourParams()
	if d.RoadFactor <= 0 {
		d.RoadFactor = def.RoadFactor
	}
	if d.SpeedKmh <= 0 {
		d.SpeedKmh = def.SpeedKmh
	}
	// a detour always leaves and rejoins the road, so zero means unset
	if d.OverheadMin <= 0 {
		d.OverheadMin = def.OverheadMin
	}
	return d
}

// Estimate converts the straight-line distance off the route into round-trip
// minutes at SpeedKmh, taking road distance as RoadFactor times the straight
// line. OverheadMin covers leaving and rejoining the road.
func (d DetourParams) Estimate(offRouteKm float64) (minutes int, meters float64) {
	roadKm := offRouteKm * d.RoadFactor
	drivingMin := roadKm / d.SpeedKmh * 60 * 2
	return int(math.Ceil(drivingMin + d.OverheadMin)), roadKm * 2 * 1000
}

// categorySpec says how to search for a category and which results to keep.
type categorySpec struct {
	code        string
	keyword     string
	mustContain string
	exclude     []string
}

var categorySpecs = map[model.Category]categorySpec{
	model.CategoryGasStation:  {code: "OL7"},
	model.CategoryEVCharger:   {keyword: "전기차충전소"},
	model.CategoryRestArea:    {keyword: "휴게소", mustContain: "휴게소", exclude: []string{"주유소", "충전소", "편의점", "화장실", "주차장", "정류장", "졸음쉼터"}},
	model.CategoryCafe:        {code: "CE7"},
	model.CategoryRestaurant:  {code: "FD6"},
	model.CategoryConvenience: {code: "CS2"},
	model.CategoryParking:     {code: "PK6"},
}

func (s categorySpec) query(center model.Coordinate, radiusM int) model.PlaceQuery {
	return model.PlaceQuery{Keyword: s.keyword, CategoryCode: s.code, Center: center, RadiusM: radiusM}
}

// accept applies the category's name rules. A rest-area search also returns
// the gas station, toilets and parking inside the rest area; those are dropped.
func (s categorySpec) accept(p model.Place) bool {
	if s.mustContain != "" && !strings.Contains(p.Name, s.mustContain) {
		return false
	}
	for _, x := range s.exclude {
		if strings.Contains(p.Name, x) {
			return false
		}
	}
	return true
}
