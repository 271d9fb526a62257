package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/config"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/health"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/httpclient"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/router"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/server"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/estimator/treemodel"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/events"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph/pgstore"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph/redisstore"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/logger"
	h3mapper "github.com/mohammed-shakir/h3-delivery-eta/internal/mapper/h3"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/metrics"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/mutator"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/resolver"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/route/osrm"
	commitlog "github.com/mohammed-shakir/h3-delivery-eta/pkg/commitlog/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real environment wins
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "eta-server",
		Component: "main",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 1
	}

	p := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled && cfg.MetricsAddr != cfg.Addr,
		Addr:    cfg.MetricsAddr,
		Path:    cfg.MetricsPath,
		Build: metrics.BuildInfo{
			Version:   firstNonEmpty(os.Getenv("BUILD_VERSION"), Version),
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := p.Serve(ctx, appLog); err != nil {
			appLog.Error("metrics listener exited", "err", err)
		}
	}()

	appLog.Info("starting eta-server",
		"addr", cfg.Addr,
		"version", Version,
		"graph_backend", cfg.GraphBackend,
		"osrm", cfg.OSRMBaseURL)

	store, err := openStore(ctx, cfg)
	if err != nil {
		appLog.Error("graph store init failed", "backend", cfg.GraphBackend, "err", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	cells := h3mapper.New()
	routes, err := osrm.New(cfg.OSRMBaseURL, cells,
		osrm.WithHTTPClient(httpclient.NewOutbound()),
		osrm.WithProfile(cfg.OSRMProfile),
		osrm.WithAlternatives(cfg.RouteAlternatives),
		osrm.WithTimeout(cfg.RouteTimeout),
	)
	if err != nil {
		appLog.Error("route provider init failed", "err", err)
		return 1
	}

	est := treemodel.NewEstimator(cfg.ModelPath)
	if cfg.ModelEager {
		m, err := est.Load()
		if err != nil {
			appLog.Error("model load failed", "path", cfg.ModelPath, "err", err)
			return 1
		}
		appLog.Info("model loaded", "path", cfg.ModelPath, "features", m.FeatureNames())
	}

	res := resolver.New(store, routes, est, appLog, resolver.WithLookupTimeout(cfg.GraphOpTimeout))
	mut := mutator.New(store, appLog)

	var sink events.Sink = events.Nop{}
	if cfg.Kafka.EventsEnabled {
		pub, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.EventsQueue, appLog)
		if err != nil {
			appLog.Error("events publisher init failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		sink = pub
	}

	opts := server.Options{
		Handlers: router.New(router.Deps{
			Resolver:  res,
			Committer: mut,
			Graph:     store,
			Cells:     cells,
			Events:    sink,
			Logger:    appLog,
		}),
		Checks:  map[string]health.Check{"graph": store.Ping},
		Metrics: p.Handler(),
	}

	if cfg.Kafka.CommitsEnabled {
		cc := commitlog.DefaultConfig()
		cc.Enabled = true
		cc.Brokers = cfg.Kafka.Brokers
		cc.Topic = cfg.Kafka.CommitsTopic
		cc.GroupID = cfg.Kafka.GroupID
		cc.DedupeSize = cfg.Kafka.DedupeSize

		runner := commitlog.New(cc, mut, commitlog.Options{
			Logger:   appLog,
			Register: p.Registerer(),
			Cells:    cells,
		})
		if err := runner.Start(ctx); err != nil {
			appLog.Error("commit-log runner start failed", "err", err)
			return 1
		}
		defer runner.Stop()
		opts.Consumer = runner
	}

	if err := server.Run(ctx, cfg, appLog, opts); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("eta-server stopped")
	return 0
}

func openStore(ctx context.Context, cfg config.Config) (graph.Store, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*cfg.GraphOpTimeout)
	defer cancel()

	switch cfg.GraphBackend {
	case config.BackendPostgres:
		s, err := pgstore.New(initCtx, cfg.DatabaseURL, 0)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		c, err := redisstore.New(initCtx, cfg.RedisAddr, cfg.GraphName, redisOptions(cfg)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func redisOptions(cfg config.Config) []redisstore.Option {
	opts := []redisstore.Option{
		redisstore.WithPoolSize(cfg.RedisPoolSize),
		redisstore.WithMinIdleConns(cfg.RedisMinIdle),
		redisstore.WithDialTimeout(cfg.RedisDialTimeout),
		redisstore.WithReadTimeout(cfg.GraphOpTimeout),
		redisstore.WithWriteTimeout(cfg.GraphOpTimeout),
	}
	if cfg.GraphWaitReplicas > 0 {
		opts = append(opts, redisstore.WithWaitReplicas(cfg.GraphWaitReplicas, cfg.GraphOpTimeout))
	}
	return opts
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
