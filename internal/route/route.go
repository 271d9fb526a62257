// Package route defines the road-routing collaborator consulted on every
// resolution.
package route

import (
	"context"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
)

// Provider returns candidate routes ordered by duration, then distance.
// An empty slice with a nil error means no feasible route exists.
type Provider interface {
	GetRoutes(ctx context.Context, source, destination model.SpatialCell) ([]model.RouteCandidate, error)
}

// Optimal returns the first candidate, or false when there is none.
func Optimal(routes []model.RouteCandidate) (model.RouteCandidate, bool) {
	if len(routes) == 0 {
		return model.RouteCandidate{}, false
	}
	return routes[0], true
}
