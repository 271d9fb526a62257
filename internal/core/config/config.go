package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type KafkaCfg struct {
	Brokers        []string
	EventsEnabled  bool
	EventsTopic    string
	EventsQueue    int
	CommitsEnabled bool
	CommitsTopic   string
	GroupID        string
	DedupeSize     int
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	GraphBackend      string
	GraphName         string
	GraphOpTimeout    time.Duration
	GraphWaitReplicas int
	RedisAddr         string
	RedisPoolSize     int
	RedisMinIdle      int
	RedisDialTimeout  time.Duration
	DatabaseURL       string

	OSRMBaseURL       string
	OSRMProfile       string
	RouteAlternatives int
	RouteTimeout      time.Duration

	ModelPath  string
	ModelEager bool

	MetricsEnabled bool
	MetricsAddr    string
	MetricsPath    string

	Kafka KafkaCfg
}

func FromEnv() Config {
	brokers := getenv("KAFKA_BROKERS", "localhost:9092")

	return Config{
		Addr:       getenv("ADDR", ":8000"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		GraphBackend:      strings.ToLower(getenv("GRAPH_BACKEND", BackendRedis)),
		GraphName:         getenv("GRAPH_NAME", "DistGraph"),
		GraphOpTimeout:    getduration("GRAPH_OP_TIMEOUT", 2*time.Second),
		GraphWaitReplicas: getint("GRAPH_WAIT_REPLICAS", 0),
		RedisAddr:         redisAddr(),
		RedisPoolSize:     getint("REDIS_POOL_SIZE", 64),
		RedisMinIdle:      getint("REDIS_MIN_IDLE_CONNS", 4),
		RedisDialTimeout:  getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
		DatabaseURL:       getenv("DATABASE_URL", ""),

		OSRMBaseURL:       osrmBaseURL(),
		OSRMProfile:       getenv("OSRM_PROFILE", "driving"),
		RouteAlternatives: getint("ROUTE_ALTERNATIVES", 3),
		RouteTimeout:      getduration("ROUTE_TIMEOUT", 5*time.Second),

		ModelPath:  getenv("MODEL_PATH", "model/cb.yaml"),
		ModelEager: getbool("MODEL_EAGER", true),

		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),

		Kafka: KafkaCfg{
			Brokers:        split(brokers),
			EventsEnabled:  getbool("EVENTS_ENABLED", false),
			EventsTopic:    getenv("EVENTS_TOPIC", "delivery-resolutions"),
			EventsQueue:    getint("EVENTS_QUEUE", 1024),
			CommitsEnabled: getbool("COMMITS_ENABLED", false),
			CommitsTopic:   getenv("COMMITS_TOPIC", "delivery-commits"),
			GroupID:        getenv("KAFKA_GROUP_ID", "graph-committer"),
			DedupeSize:     getint("COMMITS_DEDUPE_SIZE", 8192),
		},
	}
}

// Validate reports every startup problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.GraphBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR (or REDIS_HOST/REDIS_PORT) is required for the redis backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("GRAPH_BACKEND must be %q or %q, got %q", BackendRedis, BackendPostgres, c.GraphBackend))
	}
	if c.GraphBackend == BackendRedis && c.RedisPoolSize <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_POOL_SIZE must be positive, got %d", c.RedisPoolSize))
	}
	if c.OSRMBaseURL == "" {
		errs = append(errs, errors.New("OSRM_HOST is required"))
	}
	if c.RouteAlternatives <= 0 {
		errs = append(errs, fmt.Errorf("ROUTE_ALTERNATIVES must be positive, got %d", c.RouteAlternatives))
	}
	if c.RouteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ROUTE_TIMEOUT must be positive, got %s", c.RouteTimeout))
	}
	if c.GraphName == "" {
		errs = append(errs, errors.New("GRAPH_NAME must not be empty"))
	}
	if c.ModelPath == "" {
		errs = append(errs, errors.New("MODEL_PATH must not be empty"))
	}
	if (c.Kafka.EventsEnabled || c.Kafka.CommitsEnabled) && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when kafka features are enabled"))
	}
	return errors.Join(errs...)
}

// REDIS_ADDR wins; REDIS_HOST/REDIS_PORT are accepted for older deployments.
func redisAddr() string {
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		return v
	}
	host := strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if host == "" {
		return "localhost:6379"
	}
	return net.JoinHostPort(host, getenv("REDIS_PORT", "6379"))
}

func osrmBaseURL() string {
	if v := strings.TrimSpace(os.Getenv("OSRM_URL")); v != "" {
		return strings.TrimRight(v, "/")
	}
	host := strings.TrimSpace(os.Getenv("OSRM_HOST"))
	if host == "" {
		return ""
	}
	return "http://" + net.JoinHostPort(host, getenv("OSRM_PORT", "5000"))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
