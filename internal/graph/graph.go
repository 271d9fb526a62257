// Package graph defines the historical graph store: a simple directed graph of
// source (restaurant) cells to destination (delivery) cells weighted by
// observed delivery duration in minutes.
package graph

import (
	"context"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
)

// Reader is the read side used by the duration resolver.
type Reader interface {
	// Lookup returns ok=false when no edge exists for the exact ordered pair.
	Lookup(ctx context.Context, pair model.LocationPair) (duration float64, ok bool, err error)
}

// Writer is the write side used by the graph mutator.
type Writer interface {
	// UpdateEdge overwrites an existing edge; model.ErrEdgeNotFound otherwise.
	UpdateEdge(ctx context.Context, pair model.LocationPair, duration float64) error
	// CreateEdge requires the source node. It creates the destination node if
	// needed and returns model.ErrEdgeExists when the pair already has an edge.
	CreateEdge(ctx context.Context, pair model.LocationPair, duration float64) error
}

type Store interface {
	Reader
	Writer
	// SeedSource registers a source node; used by bulk construction only.
	SeedSource(ctx context.Context, cell model.SpatialCell) error
	Ping(ctx context.Context) error
	Close() error
}
