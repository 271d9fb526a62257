// Command depcheck verifies that every dependency the eta-server is
// configured against is reachable and answers sensibly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/config"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/estimator/treemodel"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph/pgstore"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph/redisstore"
	h3mapper "github.com/mohammed-shakir/h3-delivery-eta/internal/mapper/h3"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/route/osrm"
)

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type result struct {
	name    string
	detail  string
	err     error
	elapsed time.Duration
}

func runChecks(ctx context.Context, checks []check) []result {
	out := make([]result, 0, len(checks))
	for _, c := range checks {
		start := time.Now()
		detail, err := c.run(ctx)
		out = append(out, result{name: c.name, detail: detail, err: err, elapsed: time.Since(start)})
	}
	return out
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	lat := flag.Float64("lat", 12.9716, "probe origin latitude")
	lng := flag.Float64("lng", 77.5946, "probe origin longitude")
	res := flag.Int("res", 6, "probe H3 resolution")
	timeout := flag.Duration("timeout", 20*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	origin := model.LatLng{Lat: *lat, Lng: *lng}
	results := runChecks(ctx, []check{
		{"graph", func(ctx context.Context) (string, error) { return checkGraph(ctx, cfg) }},
		{"osrm", func(ctx context.Context) (string, error) { return checkRoute(ctx, cfg, origin, *res) }},
		{"model", func(context.Context) (string, error) { return checkModel(cfg) }},
		{"kafka", func(context.Context) (string, error) { return checkKafka(cfg) }},
	})

	failed := false
	for _, r := range results {
		status := "ok"
		if r.err != nil {
			status, failed = "FAIL", true
		}
		fmt.Printf("%-6s %-4s %8s  %s", r.name, status, r.elapsed.Round(time.Millisecond), r.detail)
		if r.err != nil {
			fmt.Printf(" %v", r.err)
		}
		fmt.Println()
	}
	if failed {
		os.Exit(1)
	}
}

func checkGraph(ctx context.Context, cfg config.Config) (string, error) {
	switch cfg.GraphBackend {
	case config.BackendPostgres:
		s, err := pgstore.New(ctx, cfg.DatabaseURL, 2)
		if err != nil {
			return "postgres", err
		}
		defer func() { _ = s.Close() }()
		return "postgres", s.Ping(ctx)
	default:
		c, err := redisstore.New(ctx, cfg.RedisAddr, cfg.GraphName)
		if err != nil {
			return "redis " + cfg.RedisAddr, err
		}
		defer func() { _ = c.Close() }()
		return "redis " + cfg.RedisAddr, nil
	}
}

// routes from the probe cell to its neighbour to the north-east
func checkRoute(ctx context.Context, cfg config.Config, origin model.LatLng, res int) (string, error) {
	cells := h3mapper.New()
	src, err := cells.CellAt(origin, res)
	if err != nil {
		return "", err
	}
	dst, err := cells.CellAt(model.LatLng{Lat: origin.Lat + 0.03, Lng: origin.Lng + 0.03}, res)
	if err != nil {
		return "", err
	}
	c, err := osrm.New(cfg.OSRMBaseURL, cells,
		osrm.WithProfile(cfg.OSRMProfile),
		osrm.WithAlternatives(cfg.RouteAlternatives),
		osrm.WithTimeout(cfg.RouteTimeout),
	)
	if err != nil {
		return cfg.OSRMBaseURL, err
	}
	routes, err := c.GetRoutes(ctx, src, dst)
	if err != nil {
		return cfg.OSRMBaseURL, err
	}
	if len(routes) == 0 {
		return cfg.OSRMBaseURL, model.ErrNoRouteAvailable
	}
	return fmt.Sprintf("%s %d routes, best %.0f min", cfg.OSRMBaseURL, len(routes), routes[0].DurationMinutes()), nil
}

func checkModel(cfg config.Config) (string, error) {
	m, err := treemodel.LoadFile(cfg.ModelPath)
	if err != nil {
		return cfg.ModelPath, err
	}
	return fmt.Sprintf("%s features=%v", cfg.ModelPath, m.FeatureNames()), nil
}

func checkKafka(cfg config.Config) (string, error) {
	var want []string
	if cfg.Kafka.EventsEnabled {
		want = append(want, cfg.Kafka.EventsTopic)
	}
	if cfg.Kafka.CommitsEnabled {
		want = append(want, cfg.Kafka.CommitsTopic)
	}
	if len(want) == 0 {
		return "disabled", nil
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	client, err := sarama.NewClient(cfg.Kafka.Brokers, sc)
	if err != nil {
		return fmt.Sprint(cfg.Kafka.Brokers), fmt.Errorf("kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	topics, err := client.Topics()
	if err != nil {
		return fmt.Sprint(cfg.Kafka.Brokers), fmt.Errorf("list topics: %w", err)
	}
	var errs []error
	for _, t := range want {
		if !slices.Contains(topics, t) {
			errs = append(errs, fmt.Errorf("topic %q missing", t))
		}
	}
	return fmt.Sprintf("%v topics=%v", cfg.Kafka.Brokers, want), errors.Join(errs...)
}
