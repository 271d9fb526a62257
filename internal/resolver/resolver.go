// Package resolver decides the delivery duration for a location pair by
// blending the stored historical duration, or the fallback model's estimate
// when there is none, with the current optimal route duration.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/estimator"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/logger"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/route"
)

const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeNoRoute = "no_route"
	OutcomeError   = "error"
)

type Option func(*Resolver)

// WithLookupTimeout bounds the graph lookup. Zero leaves it to the caller's context.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.lookupTimeout = d }
}

type Resolver struct {
	graph     graph.Reader
	routes    route.Provider
	estimator estimator.Estimator
	logger    *slog.Logger

	lookupTimeout time.Duration
}

func New(g graph.Reader, rp route.Provider, est estimator.Estimator, lg *slog.Logger, opts ...Option) *Resolver {
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Resolver{graph: g, routes: rp, estimator: est, logger: lg}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve never mutates the graph. Conditions are only consulted on a miss but
// must always be supplied because the branch is unknown up front.
func (r *Resolver) Resolve(ctx context.Context, pair model.LocationPair, cond model.DeliveryConditions) (model.ResolutionResult, error) {
	ctx = logger.WithPair(ctx, pair.String())

	var (
		historical float64
		found      bool
		routes     []model.RouteCandidate
	)

	// lookup and route fetch are independent; only the branch waits on both
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lctx := gctx
		if r.lookupTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(gctx, r.lookupTimeout)
			defer cancel()
		}
		d, ok, err := r.graph.Lookup(lctx, pair)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", pair, err)
		}
		historical, found = d, ok
		return nil
	})
	g.Go(func() error {
		rs, err := r.routes.GetRoutes(gctx, pair.Source, pair.Destination)
		if err != nil {
			return fmt.Errorf("routes %s: %w", pair, err)
		}
		routes = rs
		return nil
	})
	if err := g.Wait(); err != nil {
		r.fail(ctx, OutcomeError, err)
		return model.ResolutionResult{}, err
	}

	best, ok := route.Optimal(routes)
	if !ok {
		err := fmt.Errorf("resolve %s: %w", pair, model.ErrNoRouteAvailable)
		r.fail(ctx, OutcomeNoRoute, err)
		return model.ResolutionResult{}, err
	}
	routeMinutes := best.DurationMinutes()

	res := model.ResolutionResult{
		RouteMinutes: routeMinutes,
		OptimalRoute: &best,
	}
	outcome := OutcomeHit
	if found {
		res.ExistedInGraph = true
		res.BaselineMinutes = historical
	} else {
		outcome = OutcomeMiss
		predicted, err := r.estimator.Predict(ctx, cond)
		if err != nil {
			err = fmt.Errorf("estimate %s: %w", pair, err)
			r.fail(ctx, OutcomeError, err)
			return model.ResolutionResult{}, err
		}
		res.BaselineMinutes = predicted
	}
	res.DurationMinutes = mean(res.BaselineMinutes, routeMinutes)

	observability.IncResolution(outcome)
	ctx = logger.WithOutcome(ctx, outcome)
	r.logger.InfoContext(ctx, "duration resolved",
		"route_minutes", routeMinutes,
		"baseline_minutes", res.BaselineMinutes,
		"difference", math.Abs(res.BaselineMinutes-routeMinutes),
		"duration", res.DurationMinutes,
		"exist", res.ExistedInGraph,
		"alternatives", len(routes),
	)
	return res, nil
}

func (r *Resolver) fail(ctx context.Context, outcome string, err error) {
	observability.IncResolution(outcome)
	lvl := slog.LevelWarn
	if errors.Is(err, model.ErrNoRouteAvailable) || errors.Is(err, context.Canceled) {
		lvl = slog.LevelInfo
	}
	r.logger.Log(logger.WithOutcome(ctx, outcome), lvl, "resolution failed", "err", err)
}

func mean(a, b float64) float64 { return (a + b) / 2 }
