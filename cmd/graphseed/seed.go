package main

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
)

const (
	colSource   = "Restaurant_hex_id"
	colDest     = "Delivery_hex_id"
	colDuration = "Time_taken(min)"
)

// readEdges groups delivery rows by ordered pair and takes the median
// duration of each group. Output is sorted by pair.
func readEdges(r io.Reader) ([]model.HistoricalEdge, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{colSource: -1, colDest: -1, colDuration: -1}
	for i, h := range header {
		if _, ok := idx[strings.TrimSpace(h)]; ok {
			idx[strings.TrimSpace(h)] = i
		}
	}
	for name, i := range idx {
		if i < 0 {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	groups := map[model.LocationPair][]float64{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pair := model.LocationPair{
			Source:      model.SpatialCell(strings.TrimSpace(rec[idx[colSource]])),
			Destination: model.SpatialCell(strings.TrimSpace(rec[idx[colDest]])),
		}
		if pair.Source == "" || pair.Destination == "" {
			return nil, fmt.Errorf("line %d: empty hex id", line)
		}
		d, err := parseMinutes(rec[idx[colDuration]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		groups[pair] = append(groups[pair], d)
	}

	out := make([]model.HistoricalEdge, 0, len(groups))
	for pair, ds := range groups {
		out = append(out, model.HistoricalEdge{Pair: pair, Duration: median(ds)})
	}
	slices.SortFunc(out, func(a, b model.HistoricalEdge) int {
		return cmp.Or(
			cmp.Compare(a.Pair.Source, b.Pair.Source),
			cmp.Compare(a.Pair.Destination, b.Pair.Destination),
		)
	})
	return out, nil
}

// raw exports carry values like "(min) 24"
func parseMinutes(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "(min)"))
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}

func median(ds []float64) float64 {
	s := slices.Clone(ds)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

type seedStats struct {
	Sources int
	Created int64
	Skipped int64
}

// seedGraph registers every distinct source cell, then creates one edge per
// group. Edges already present are counted and left untouched.
func seedGraph(ctx context.Context, store graph.Store, edges []model.HistoricalEdge, workers int, lg *slog.Logger) (seedStats, error) {
	var st seedStats

	seen := map[model.SpatialCell]struct{}{}
	for _, e := range edges {
		if _, ok := seen[e.Pair.Source]; ok {
			continue
		}
		seen[e.Pair.Source] = struct{}{}
		if err := store.SeedSource(ctx, e.Pair.Source); err != nil {
			return st, fmt.Errorf("seed source %s: %w", e.Pair.Source, err)
		}
	}
	st.Sources = len(seen)
	lg.Info("source nodes seeded", "count", st.Sources)

	var created, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, e := range edges {
		g.Go(func() error {
			err := store.CreateEdge(gctx, e.Pair, e.Duration)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, model.ErrEdgeExists):
				skipped.Add(1)
				lg.Debug("edge exists, skipped", "pair", e.Pair.String())
			default:
				return fmt.Errorf("create edge %s: %w", e.Pair, err)
			}
			return nil
		})
	}
	err := g.Wait()
	st.Created, st.Skipped = created.Load(), skipped.Load()
	return st, err
}
