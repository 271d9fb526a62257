// Command graphseed bulk-loads the historical delivery graph from a
// processed delivery CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/config"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph/pgstore"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph/redisstore"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.FromEnv()

	csvPath := flag.String("csv", "data/processed_data.csv", "processed delivery CSV")
	backend := flag.String("backend", cfg.GraphBackend, "graph backend (redis|postgres)")
	workers := flag.Int("workers", 8, "concurrent edge creates")
	flag.Parse()
	cfg.GraphBackend = *backend

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Service:   "graphseed",
		Component: "seed",
	}, os.Stderr)
	lg := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*csvPath)
	if err != nil {
		lg.Error("open csv", "path", *csvPath, "err", err)
		return 1
	}
	defer func() { _ = f.Close() }()

	edges, err := readEdges(f)
	if err != nil {
		lg.Error("read csv", "path", *csvPath, "err", err)
		return 1
	}
	lg.Info("grouped deliveries", "edges", len(edges))

	store, err := open(ctx, cfg)
	if err != nil {
		lg.Error("graph store init failed", "backend", cfg.GraphBackend, "err", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	start := time.Now()
	st, err := seedGraph(ctx, store, edges, *workers, lg)
	lg.Info("seed finished",
		"sources", st.Sources,
		"created", st.Created,
		"skipped", st.Skipped,
		"elapsed", time.Since(start).String())
	if err != nil {
		lg.Error("seed failed", "err", err)
		return 1
	}
	return 0
}

func open(ctx context.Context, cfg config.Config) (graph.Store, error) {
	switch cfg.GraphBackend {
	case config.BackendPostgres:
		s, err := pgstore.New(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		c, err := redisstore.New(ctx, cfg.RedisAddr, cfg.GraphName)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.GraphBackend)
	}
}
