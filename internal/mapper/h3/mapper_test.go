package h3mapper

import (
	"math"
	"sort"
	"testing"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/geo"
)

var seoulStation = model.Coordinate{Lat: 37.5547, Lng: 126.9707}

func TestCellFor_DeterministicAndNearbyShareCell(t *testing.T) {
	m := New()
	a, err := m.CellFor(seoulStation, 9)
	if err != nil {
		t.Fatalf("CellFor: %v", err)
	}
	b, _ := m.CellFor(seoulStation, 9)
	if a != b {
		t.Fatalf("non-deterministic: %s vs %s", a, b)
	}
	// a few metres away at res 7 (~1.2km edge) stays in the same cell
	near := model.Coordinate{Lat: seoulStation.Lat + 0.00002, Lng: seoulStation.Lng}
	c1, _ := m.CellFor(seoulStation, 7)
	c2, _ := m.CellFor(near, 7)
	if c1 != c2 {
		t.Fatalf("expected shared res-7 cell: %s vs %s", c1, c2)
	}
}

func TestCellFor_RejectsBadInput(t *testing.T) {
	m := New()
	if _, err := m.CellFor(seoulStation, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
	if _, err := m.CellFor(model.Coordinate{Lat: math.NaN(), Lng: 127}, 9); err == nil {
		t.Fatalf("expected error for NaN")
	}
}

func TestCenter_InsideOwnCell(t *testing.T) {
	m := New()
	cell, _ := m.CellFor(seoulStation, 9)
	ctr, err := m.Center(cell)
	if err != nil {
		t.Fatalf("Center: %v", err)
	}
	if d := geo.HaversineKm(ctr, seoulStation); d > 0.5 {
		t.Fatalf("centroid %v km away", d)
	}
	back, _ := m.CellFor(ctr, 9)
	if back != cell {
		t.Fatalf("centroid maps to %s, want %s", back, cell)
	}
	if _, err := m.Center("not-a-cell"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestToParent(t *testing.T) {
	m := New()
	cell, _ := m.CellFor(seoulStation, 9)
	p, err := m.ToParent(cell, 7)
	if err != nil {
		t.Fatalf("ToParent: %v", err)
	}
	direct, _ := m.CellFor(seoulStation, 7)
	if p != direct {
		t.Fatalf("parent %s != direct res-7 cell %s", p, direct)
	}
	if same, _ := m.ToParent(cell, 9); same != cell {
		t.Fatalf("same-res parent changed cell")
	}
	if _, err := m.ToParent(cell, 10); err == nil {
		t.Fatalf("expected error for parentRes > current res")
	}
}

func TestCellsAlong_SortedUnique(t *testing.T) {
	m := New()
	pts := []model.Coordinate{seoulStation, seoulStation, {Lat: 37.40, Lng: 127.10}}
	cells, err := m.CellsAlong(pts, 8)
	if err != nil {
		t.Fatalf("CellsAlong: %v", err)
	}
	if len(cells) != 2 || !sort.StringsAreSorted(cells) {
		t.Fatalf("cells = %v", cells)
	}
}
