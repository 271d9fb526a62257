package redisstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
)

const (
	restaurant = model.SpatialCell("86603386fffffff")
	delivery   = model.SpatialCell("8642ca85fffffff")
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr(), "DistGraph")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCreateThenLookup_RoundTripsExactly(t *testing.T) {
	rc, mr := newMini(t)
	ctx := testCtx(t)
	pair := model.LocationPair{Source: restaurant, Destination: delivery}

	if err := rc.SeedSource(ctx, restaurant); err != nil {
		t.Fatalf("SeedSource: %v", err)
	}

	if _, ok, err := rc.Lookup(ctx, pair); err != nil || ok {
		t.Fatalf("Lookup before create: ok=%v err=%v", ok, err)
	}

	const d = 32.5000000001
	if err := rc.CreateEdge(ctx, pair, d); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	got, ok, err := rc.Lookup(ctx, pair)
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if got != d {
		t.Fatalf("Lookup=%v want %v", got, d)
	}

	keys := graph.NewKeys("DistGraph")
	if ok, _ := mr.SIsMember(keys.Destinations(), string(delivery)); !ok {
		t.Fatalf("destination node not registered")
	}
}

func TestLookup_IsDirected(t *testing.T) {
	rc, _ := newMini(t)
	ctx := testCtx(t)

	_ = rc.SeedSource(ctx, restaurant)
	if err := rc.CreateEdge(ctx, model.LocationPair{Source: restaurant, Destination: delivery}, 30); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if _, ok, err := rc.Lookup(ctx, model.LocationPair{Source: delivery, Destination: restaurant}); err != nil || ok {
		t.Fatalf("reverse pair must not resolve: ok=%v err=%v", ok, err)
	}
}

func TestUpdateEdge_RequiresExistingEdge(t *testing.T) {
	rc, mr := newMini(t)
	ctx := testCtx(t)
	pair := model.LocationPair{Source: restaurant, Destination: delivery}

	err := rc.UpdateEdge(ctx, pair, 10)
	if !errors.Is(err, model.ErrEdgeNotFound) {
		t.Fatalf("UpdateEdge on missing edge err=%v want ErrEdgeNotFound", err)
	}
	if mr.Exists(graph.NewKeys("DistGraph").Edges(string(restaurant))) {
		t.Fatalf("update must not upsert")
	}
}

func TestUpdateEdge_IdempotentAndNoDuplicates(t *testing.T) {
	rc, mr := newMini(t)
	ctx := testCtx(t)
	pair := model.LocationPair{Source: restaurant, Destination: delivery}

	_ = rc.SeedSource(ctx, restaurant)
	if err := rc.CreateEdge(ctx, pair, 30); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	for range 2 {
		if err := rc.UpdateEdge(ctx, pair, 27.5); err != nil {
			t.Fatalf("UpdateEdge: %v", err)
		}
	}
	got, _, _ := rc.Lookup(ctx, pair)
	if got != 27.5 {
		t.Fatalf("Lookup=%v want 27.5", got)
	}
	fields, err := mr.HKeys(graph.NewKeys("DistGraph").Edges(string(restaurant)))
	if err != nil {
		t.Fatalf("HKeys: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("edges for source=%v want exactly one", fields)
	}
}

func TestCreateEdge_SourceNodeMissing(t *testing.T) {
	rc, mr := newMini(t)
	ctx := testCtx(t)

	err := rc.CreateEdge(ctx, model.LocationPair{Source: restaurant, Destination: delivery}, 12)
	if !errors.Is(err, model.ErrSourceNodeMissing) {
		t.Fatalf("err=%v want ErrSourceNodeMissing", err)
	}
	keys := graph.NewKeys("DistGraph")
	if mr.Exists(keys.Sources()) || mr.Exists(keys.Destinations()) {
		t.Fatalf("failed create must not leave nodes behind")
	}
}

func TestCreateEdge_DestinationRoleIsNotASource(t *testing.T) {
	rc, _ := newMini(t)
	ctx := testCtx(t)

	_ = rc.SeedSource(ctx, restaurant)
	if err := rc.CreateEdge(ctx, model.LocationPair{Source: restaurant, Destination: delivery}, 20); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	err := rc.CreateEdge(ctx, model.LocationPair{Source: delivery, Destination: restaurant}, 20)
	if !errors.Is(err, model.ErrSourceNodeMissing) {
		t.Fatalf("destination node reused as source: err=%v", err)
	}
}

func TestCreateEdge_DuplicateRejected(t *testing.T) {
	rc, _ := newMini(t)
	ctx := testCtx(t)
	pair := model.LocationPair{Source: restaurant, Destination: delivery}

	_ = rc.SeedSource(ctx, restaurant)
	if err := rc.CreateEdge(ctx, pair, 20); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if err := rc.CreateEdge(ctx, pair, 99); !errors.Is(err, model.ErrEdgeExists) {
		t.Fatalf("second create err=%v want ErrEdgeExists", err)
	}
	if got, _, _ := rc.Lookup(ctx, pair); got != 20 {
		t.Fatalf("duplicate create overwrote duration: %v", got)
	}
}

func TestCreateEdge_ConcurrentCreatesExactlyOneWins(t *testing.T) {
	rc, _ := newMini(t)
	ctx := testCtx(t)
	pair := model.LocationPair{Source: restaurant, Destination: delivery}
	_ = rc.SeedSource(ctx, restaurant)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(d float64) {
			defer wg.Done()
			err := rc.CreateEdge(ctx, pair, d)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, model.ErrEdgeExists):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}(float64(i))
	}
	wg.Wait()
	if wins.Load() != 1 || conflicts.Load() != 15 {
		t.Fatalf("wins=%d conflicts=%d want 1/15", wins.Load(), conflicts.Load())
	}
}

func TestStoreUnavailable_WhenRedisDown(t *testing.T) {
	rc, mr := newMini(t)
	mr.Close()

	ctx := testCtx(t)
	pair := model.LocationPair{Source: restaurant, Destination: delivery}

	if _, _, err := rc.Lookup(ctx, pair); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("Lookup err=%v want ErrStoreUnavailable", err)
	}
	if err := rc.UpdateEdge(ctx, pair, 1); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("UpdateEdge err=%v want ErrStoreUnavailable", err)
	}
	if err := rc.CreateEdge(ctx, pair, 1); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("CreateEdge err=%v want ErrStoreUnavailable", err)
	}
	if err := rc.Ping(ctx); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("Ping err=%v want ErrStoreUnavailable", err)
	}
}

func TestContextCanceled_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := rc.Lookup(ctx, model.LocationPair{Source: restaurant, Destination: delivery}); err == nil {
		t.Fatalf("expected error on Lookup with canceled context")
	}
}

func TestNew_AppliesPoolOptions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc, err := New(testCtx(t), mr.Addr(), "DistGraph",
		WithPoolSize(7),
		WithMinIdleConns(1),
		WithDialTimeout(300*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	o := rc.rdb.Options()
	if o.PoolSize != 7 || o.MinIdleConns != 1 || o.DialTimeout != 300*time.Millisecond {
		t.Fatalf("options not applied: pool=%d idle=%d dial=%s", o.PoolSize, o.MinIdleConns, o.DialTimeout)
	}
}
