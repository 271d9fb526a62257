// Package redisstore keeps the historical delivery graph in Redis.
//
// Layout per graph (see graph.Keys): a set of source node ids, a set of
// destination node ids and one hash per source mapping destination id to the
// edge duration. Creates and updates run as Lua scripts so the existence check
// and the write are atomic across every client of the same Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
)

const backend = "redis"

type Option func(*options)

type options struct {
	redis        *redis.Options
	waitReplicas int
	waitTimeout  time.Duration
}

func WithPoolSize(n int) Option {
	return func(o *options) { o.redis.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *options) { o.redis.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.redis.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.redis.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.redis.WriteTimeout = d }
}

// WithWaitReplicas makes every mutation block until n replicas acknowledged it.
func WithWaitReplicas(n int, timeout time.Duration) Option {
	return func(o *options) {
		o.waitReplicas = n
		o.waitTimeout = timeout
	}
}

// -1 source missing, 0 edge exists, 1 created
var createEdgeScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
	return -1
end
if redis.call('HSETNX', KEYS[3], ARGV[2], ARGV[3]) == 0 then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// 0 edge missing, 1 updated
var updateEdgeScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

type Client struct {
	rdb          *redis.Client
	keys         graph.Keys
	waitReplicas int
	waitTimeout  time.Duration
}

var _ graph.Store = (*Client)(nil)

func New(ctx context.Context, addr, graphName string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	o := &options{
		redis: &redis.Options{
			Addr:         addr,
			PoolSize:     64,
			MinIdleConns: 4,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			MaintNotificationsConfig: &maintnotifications.Config{
				Mode: maintnotifications.ModeDisabled,
			},
		},
		waitTimeout: time.Second,
	}
	for _, f := range opts {
		f(o)
	}

	rdb := redis.NewClient(o.redis)
	c := &Client{
		rdb:          rdb,
		keys:         graph.NewKeys(graphName),
		waitReplicas: o.waitReplicas,
		waitTimeout:  o.waitTimeout,
	}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveGraphOp(backend, "ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: redis ping: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *Client) Lookup(ctx context.Context, pair model.LocationPair) (float64, bool, error) {
	start := time.Now()
	key := c.keys.Edges(string(pair.Source))
	raw, err := c.rdb.HGet(ctx, key, string(pair.Destination)).Result()
	if errors.Is(err, redis.Nil) {
		observability.ObserveGraphOp(backend, "lookup", nil, time.Since(start).Seconds())
		return 0, false, nil
	}
	observability.ObserveGraphOp(backend, "lookup", err, time.Since(start).Seconds())
	if err != nil {
		return 0, false, fmt.Errorf("%w: redis HGET %q: %w", model.ErrStoreUnavailable, key, err)
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode duration for %s: %w", pair, err)
	}
	return d, true, nil
}

func (c *Client) UpdateEdge(ctx context.Context, pair model.LocationPair, duration float64) error {
	start := time.Now()
	key := c.keys.Edges(string(pair.Source))
	n, err := updateEdgeScript.Run(ctx, c.rdb,
		[]string{key},
		string(pair.Destination), formatDuration(duration),
	).Int64()
	observability.ObserveGraphOp(backend, "update_edge", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: redis update edge %s: %w", model.ErrStoreUnavailable, pair, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", pair, model.ErrEdgeNotFound)
	}
	return c.waitDurable(ctx)
}

func (c *Client) CreateEdge(ctx context.Context, pair model.LocationPair, duration float64) error {
	start := time.Now()
	n, err := createEdgeScript.Run(ctx, c.rdb,
		[]string{c.keys.Sources(), c.keys.Destinations(), c.keys.Edges(string(pair.Source))},
		string(pair.Source), string(pair.Destination), formatDuration(duration),
	).Int64()
	observability.ObserveGraphOp(backend, "create_edge", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: redis create edge %s: %w", model.ErrStoreUnavailable, pair, err)
	}
	switch n {
	case -1:
		return fmt.Errorf("create %s: %w", pair, model.ErrSourceNodeMissing)
	case 0:
		return fmt.Errorf("create %s: %w", pair, model.ErrEdgeExists)
	}
	return c.waitDurable(ctx)
}

func (c *Client) SeedSource(ctx context.Context, cell model.SpatialCell) error {
	start := time.Now()
	err := c.rdb.SAdd(ctx, c.keys.Sources(), string(cell)).Err()
	observability.ObserveGraphOp(backend, "seed_source", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: redis SADD source %q: %w", model.ErrStoreUnavailable, cell, err)
	}
	return c.waitDurable(ctx)
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func (c *Client) waitDurable(ctx context.Context) error {
	if c.waitReplicas <= 0 {
		return nil
	}
	acked, err := c.rdb.Wait(ctx, c.waitReplicas, c.waitTimeout).Result()
	if err != nil {
		return fmt.Errorf("%w: redis WAIT: %w", model.ErrStoreUnavailable, err)
	}
	if acked < int64(c.waitReplicas) {
		return fmt.Errorf("%w: %d/%d replicas acknowledged", model.ErrStoreUnavailable, acked, c.waitReplicas)
	}
	return nil
}

// 'g' with -1 precision round-trips every float64 exactly.
func formatDuration(d float64) string {
	return strconv.FormatFloat(d, 'g', -1, 64)
}
