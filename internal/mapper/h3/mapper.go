package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/mapper"
)

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

// CellFor returns the H3 cell containing c at res.
func (m *Mapper) CellFor(c model.Coordinate, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if !c.IsFinite() {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidCoordinate, c)
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Lat, Lng: c.Lng}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return cell.String(), nil
}

// Center returns the centroid of cell. Searches issued from a cell centre
// are shared by every point that falls inside the cell.
func (m *Mapper) Center(cell string) (model.Coordinate, error) {
	c, err := parse(cell)
	if err != nil {
		return model.Coordinate{}, err
	}
	ll, err := c.LatLng()
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("h3 centroid: %w", err)
	}
	return model.Coordinate{Lat: ll.Lat, Lng: ll.Lng}, nil
}

func (m *Mapper) ToParent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parse(cell)
	if err != nil {
		return "", err
	}
	curRes := c.Resolution()
	if parentRes > curRes {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, curRes)
	}
	if parentRes == curRes {
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

// CellsAlong returns the distinct cells touched by points, sorted.
func (m *Mapper) CellsAlong(points []model.Coordinate, res int) ([]string, error) {
	seen := make(map[string]struct{}, len(points))
	out := make([]string, 0, len(points))
	for _, p := range points {
		s, err := m.CellFor(p, res)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func parse(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return c, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return c, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}
