package treemodel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/estimator"
)

// Estimator loads the artifact at path on first use and keeps it for the life
// of the process. A failed load is not cached; the next call tries again.
type Estimator struct {
	path string

	mu  sync.Mutex
	cur atomic.Pointer[Model]
}

var _ estimator.Estimator = (*Estimator)(nil)

func NewEstimator(path string) *Estimator {
	return &Estimator{path: path}
}

// Load forces the one-time artifact load. Safe to call repeatedly.
func (e *Estimator) Load() (*Model, error) {
	if m := e.cur.Load(); m != nil {
		return m, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if m := e.cur.Load(); m != nil {
		return m, nil
	}
	m, err := LoadFile(e.path)
	if err != nil {
		return nil, err
	}
	e.cur.Store(m)
	return m, nil
}

// Loaded reports whether the artifact is in memory.
func (e *Estimator) Loaded() bool { return e.cur.Load() != nil }

func (e *Estimator) Predict(ctx context.Context, c model.DeliveryConditions) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m, err := e.Load()
	if err != nil {
		observability.IncModelPrediction(err)
		return 0, err
	}
	v, err := m.Predict(estimator.Vector(c))
	observability.IncModelPrediction(err)
	return v, err
}
