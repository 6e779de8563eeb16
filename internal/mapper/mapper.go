// Package mapper converts coordinates into coarse spatial cells.
package mapper

import (
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

type Interface interface {
	CellFor(c model.Coordinate, res int) (string, error)
	// Center is the point every lookup in cell is answered from.
	Center(cell string) (model.Coordinate, error)
}
