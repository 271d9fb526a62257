package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("OSRM_HOST", "osrm")

	c := FromEnv()
	if c.Addr != ":8000" || c.GraphBackend != BackendRedis || c.GraphName != "DistGraph" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.RedisAddr != "localhost:6379" {
		t.Fatalf("RedisAddr=%q", c.RedisAddr)
	}
	if c.OSRMBaseURL != "http://osrm:5000" {
		t.Fatalf("OSRMBaseURL=%q", c.OSRMBaseURL)
	}
	if c.RouteAlternatives != 3 || c.RouteTimeout != 5*time.Second {
		t.Fatalf("route defaults: %d %s", c.RouteAlternatives, c.RouteTimeout)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFromEnv_LegacyRedisHostPort(t *testing.T) {
	t.Setenv("REDIS_HOST", "graph-db")
	t.Setenv("REDIS_PORT", "6380")
	if got := FromEnv().RedisAddr; got != "graph-db:6380" {
		t.Fatalf("RedisAddr=%q want graph-db:6380", got)
	}

	t.Setenv("REDIS_ADDR", "explicit:1")
	if got := FromEnv().RedisAddr; got != "explicit:1" {
		t.Fatalf("REDIS_ADDR should win, got %q", got)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("OSRM_URL", "http://router.local:5001/")
	t.Setenv("ROUTE_ALTERNATIVES", "5")
	t.Setenv("ROUTE_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("COMMITS_ENABLED", "yes")
	t.Setenv("MODEL_EAGER", "0")

	c := FromEnv()
	if c.OSRMBaseURL != "http://router.local:5001" {
		t.Fatalf("OSRMBaseURL=%q", c.OSRMBaseURL)
	}
	if c.RouteAlternatives != 5 || c.RouteTimeout != 750*time.Millisecond {
		t.Fatalf("route overrides not applied: %+v", c)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers=%v", c.Kafka.Brokers)
	}
	if !c.Kafka.CommitsEnabled || c.ModelEager {
		t.Fatalf("bool overrides not applied: %+v", c)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	c := Config{
		GraphBackend:      BackendPostgres,
		RouteAlternatives: 0,
		RouteTimeout:      time.Second,
		GraphName:         "DistGraph",
		ModelPath:         "m.yaml",
	}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"DATABASE_URL", "OSRM_HOST", "ROUTE_ALTERNATIVES"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}

	c.GraphBackend = "neo4j"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "GRAPH_BACKEND") {
		t.Fatalf("expected GRAPH_BACKEND error, got %v", err)
	}
}

func TestFromEnv_RedisPool(t *testing.T) {
	t.Setenv("OSRM_HOST", "osrm")
	c := FromEnv()
	if c.RedisPoolSize != 64 || c.RedisMinIdle != 4 || c.RedisDialTimeout != 2*time.Second {
		t.Fatalf("redis pool defaults: %d %d %s", c.RedisPoolSize, c.RedisMinIdle, c.RedisDialTimeout)
	}

	t.Setenv("REDIS_POOL_SIZE", "16")
	t.Setenv("REDIS_MIN_IDLE_CONNS", "2")
	t.Setenv("REDIS_DIAL_TIMEOUT", "500ms")
	c = FromEnv()
	if c.RedisPoolSize != 16 || c.RedisMinIdle != 2 || c.RedisDialTimeout != 500*time.Millisecond {
		t.Fatalf("redis pool overrides: %d %d %s", c.RedisPoolSize, c.RedisMinIdle, c.RedisDialTimeout)
	}

	t.Setenv("REDIS_POOL_SIZE", "0")
	if err := FromEnv().Validate(); err == nil || !strings.Contains(err.Error(), "REDIS_POOL_SIZE") {
		t.Fatalf("expected REDIS_POOL_SIZE error, got %v", err)
	}
}
