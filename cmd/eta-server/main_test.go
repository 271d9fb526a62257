package main

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/config"
)

func TestOpenStore_RedisWithPoolSettings(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.Config{
		GraphBackend:     config.BackendRedis,
		GraphName:        "DistGraph",
		GraphOpTimeout:   time.Second,
		RedisAddr:        mr.Addr(),
		RedisPoolSize:    8,
		RedisMinIdle:     1,
		RedisDialTimeout: 500 * time.Millisecond,
	}
	if n := len(redisOptions(cfg)); n != 5 {
		t.Fatalf("options=%d want 5 without replica wait", n)
	}
	cfg.GraphWaitReplicas = 1
	if n := len(redisOptions(cfg)); n != 6 {
		t.Fatalf("options=%d want 6 with replica wait", n)
	}
	cfg.GraphWaitReplicas = 0

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
