// Package mapper converts between H3 spatial cells and geographic coordinates.
package mapper

import (
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
)

type Interface interface {
	Validate(cell model.SpatialCell) error
	Centroid(cell model.SpatialCell) (model.LatLng, error)
}
