// Package router holds the inbound delivery-duration API handlers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/events"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
	mylog "github.com/mohammed-shakir/h3-delivery-eta/internal/logger"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/mapper"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/mutator"
)

const maxRequestBody = 1 << 20

type Resolver interface {
	Resolve(ctx context.Context, pair model.LocationPair, cond model.DeliveryConditions) (model.ResolutionResult, error)
}

type Committer interface {
	Commit(ctx context.Context, pair model.LocationPair, res model.ResolutionResult) (mutator.Action, error)
	Apply(ctx context.Context, pair model.LocationPair, exists bool, duration float64) (mutator.Action, error)
}

type Deps struct {
	Resolver  Resolver
	Committer Committer
	Graph     graph.Reader
	Cells     mapper.Interface
	Events    events.Sink
	Logger    *slog.Logger
}

type Handlers struct {
	resolver  Resolver
	committer Committer
	graph     graph.Reader
	cells     mapper.Interface
	events    events.Sink
	logger    *slog.Logger
	validate  *validator.Validate
}

func New(d Deps) *Handlers {
	ev := d.Events
	if ev == nil {
		ev = events.Nop{}
	}
	lg := d.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Handlers{
		resolver:  d.Resolver,
		committer: d.Committer,
		graph:     d.Graph,
		cells:     d.Cells,
		events:    ev,
		logger:    lg,
		validate:  validator.New(),
	}
}

func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Hi from first FastApi!", Status: http.StatusOK})
}

// Predict resolves a duration for the pair without touching the graph.
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !h.decode(w, r, &req) {
		return
	}
	includeRoute, err := parseBoolParam(r, "include_route")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	pair := req.HexData.Pair()
	if !h.validPair(w, pair) {
		return
	}

	ctx := mylog.WithPair(r.Context(), pair.String())
	res, err := h.resolver.Resolve(ctx, pair, req.Data)
	if err != nil {
		h.fail(ctx, w, "predict", err)
		return
	}
	h.publish(events.KindResolved, pair, res, "")

	out := PredictResponse{Duration: res.DurationMinutes, Exist: res.ExistedInGraph, Status: http.StatusOK}
	if includeRoute {
		out.Route = res.OptimalRoute
	}
	writeJSON(w, http.StatusOK, out)
}

// Update commits a prior resolution using the exists flag that resolution returned.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair := req.HexData.Pair()
	if !h.validPair(w, pair) {
		return
	}

	ctx := mylog.WithPair(r.Context(), pair.String())
	exists, duration := *req.Exists, *req.PredictedDuration
	action, err := h.committer.Apply(ctx, pair, exists, duration)
	if err != nil {
		h.fail(ctx, w, "update", err)
		return
	}
	h.publish(events.KindCommitted, pair, model.ResolutionResult{DurationMinutes: duration, ExistedInGraph: exists}, string(action))

	msg := "Edge value updated"
	if action == mutator.ActionCreated {
		msg = "New edge added to Graph"
	}
	writeJSON(w, http.StatusOK, MessageResponse{Msg: msg, Status: http.StatusOK})
}

// ResolveAndCommit resolves and commits in one call so the exists flag can
// never drift from the resolution that produced it.
func (h *Handlers) ResolveAndCommit(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair := req.HexData.Pair()
	if !h.validPair(w, pair) {
		return
	}

	ctx := mylog.WithPair(r.Context(), pair.String())
	res, err := h.resolver.Resolve(ctx, pair, req.Data)
	if err != nil {
		h.fail(ctx, w, "resolve", err)
		return
	}
	h.publish(events.KindResolved, pair, res, "")

	action, err := h.committer.Commit(ctx, pair, res)
	if err != nil {
		h.fail(ctx, w, "commit", err)
		return
	}
	h.publish(events.KindCommitted, pair, res, string(action))

	writeJSON(w, http.StatusOK, ResolveCommitResponse{
		Duration: res.DurationMinutes,
		Exist:    res.ExistedInGraph,
		Action:   string(action),
		Status:   http.StatusOK,
	})
}

func (h *Handlers) GetEdge(w http.ResponseWriter, r *http.Request) {
	pair := model.LocationPair{
		Source:      model.SpatialCell(chi.URLParam(r, "source")),
		Destination: model.SpatialCell(chi.URLParam(r, "destination")),
	}
	if !h.validPair(w, pair) {
		return
	}

	d, ok, err := h.graph.Lookup(r.Context(), pair)
	if err != nil {
		h.fail(r.Context(), w, "lookup", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "edge_not_found", fmt.Sprintf("no edge for %s", pair))
		return
	}
	writeJSON(w, http.StatusOK, EdgeResponse{
		Source:      string(pair.Source),
		Destination: string(pair.Destination),
		Duration:    d,
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) validPair(w http.ResponseWriter, pair model.LocationPair) bool {
	if h.cells == nil {
		return true
	}
	for _, c := range []model.SpatialCell{pair.Source, pair.Destination} {
		if err := h.cells.Validate(c); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return false
		}
	}
	return true
}

func (h *Handlers) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	lvl := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}
	if errors.Is(err, context.Canceled) {
		lvl = slog.LevelInfo
	}
	h.logger.Log(ctx, lvl, "request failed", "op", op, "code", code, "err", err)
	writeError(w, status, code, err.Error())
}

func (h *Handlers) publish(kind string, pair model.LocationPair, res model.ResolutionResult, action string) {
	h.events.Publish(events.Event{
		ID:              mylog.NewID(),
		Kind:            kind,
		Source:          string(pair.Source),
		Destination:     string(pair.Destination),
		Duration:        res.DurationMinutes,
		Exist:           res.ExistedInGraph,
		RouteMinutes:    res.RouteMinutes,
		BaselineMinutes: res.BaselineMinutes,
		Action:          action,
		TS:              time.Now().UTC(),
	})
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
