// Package mutator commits a resolution back into the historical graph.
package mutator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/logger"
)

const numStripes = 64

var ErrInvalidDuration = errors.New("duration must be a finite, non-negative number of minutes")

type Action string

const (
	ActionUpdated Action = "updated"
	ActionCreated Action = "created"
	// A create lost to a concurrent create of the same pair and was re-applied as an update.
	ActionConflictUpdated Action = "conflict_updated"
)

// Mutator serializes commits per location pair within the process. Across
// processes the store itself guarantees at most one edge per ordered pair.
type Mutator struct {
	store  graph.Writer
	logger *slog.Logger

	stripes [numStripes]sync.Mutex
}

func New(w graph.Writer, lg *slog.Logger) *Mutator {
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mutator{store: w, logger: lg}
}

// Commit applies res using the exact existedInGraph flag it was resolved with.
func (m *Mutator) Commit(ctx context.Context, pair model.LocationPair, res model.ResolutionResult) (Action, error) {
	return m.Apply(ctx, pair, res.ExistedInGraph, res.DurationMinutes)
}

// Apply updates the edge when exists is true and creates it otherwise. A
// mismatched flag is not corrected: updating a missing edge fails with
// model.ErrEdgeNotFound.
func (m *Mutator) Apply(ctx context.Context, pair model.LocationPair, exists bool, duration float64) (Action, error) {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return "", fmt.Errorf("commit %s: %w", pair, ErrInvalidDuration)
	}
	ctx = logger.WithPair(ctx, pair.String())

	mu := m.stripe(pair)
	mu.Lock()
	defer mu.Unlock()

	action, err := m.apply(ctx, pair, exists, duration)
	if err != nil {
		m.logger.WarnContext(ctx, "graph commit failed", "exist", exists, "duration", duration, "err", err)
		return "", err
	}
	observability.IncGraphMutation(string(action))
	m.logger.InfoContext(ctx, "graph committed", "action", string(action), "duration", duration)
	return action, nil
}

func (m *Mutator) apply(ctx context.Context, pair model.LocationPair, exists bool, duration float64) (Action, error) {
	if exists {
		if err := m.store.UpdateEdge(ctx, pair, duration); err != nil {
			return "", err
		}
		return ActionUpdated, nil
	}

	err := m.store.CreateEdge(ctx, pair, duration)
	if err == nil {
		return ActionCreated, nil
	}
	if !errors.Is(err, model.ErrEdgeExists) {
		return "", err
	}
	// another writer created the edge between our lookup and now
	if err := m.store.UpdateEdge(ctx, pair, duration); err != nil {
		return "", fmt.Errorf("update after create conflict: %w", err)
	}
	return ActionConflictUpdated, nil
}

func (m *Mutator) stripe(pair model.LocationPair) *sync.Mutex {
	h := xxhash.New()
	_, _ = h.WriteString(string(pair.Source))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(string(pair.Destination))
	return &m.stripes[h.Sum64()%numStripes]
}
