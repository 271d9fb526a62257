// Package observability owns the Prometheus collectors recorded across the service.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolutions_total",
			Help: "Duration resolutions by outcome (hit, miss, error).",
		},
		[]string{"outcome"},
	)

	graphOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_op_total",
			Help: "Historical graph store operations by result.",
		},
		[]string{"backend", "op", "result"},
	)

	graphOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_op_duration_seconds",
			Help:    "Latency of historical graph store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"backend", "op"},
	)

	routeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "route_provider_latency_seconds",
			Help:    "Latency of route provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"result"},
	)

	routeCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "route_candidates",
			Help:    "Number of route alternatives returned per call.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		},
	)

	modelPredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_predictions_total",
			Help: "Fallback estimator predictions by result.",
		},
		[]string{"result"},
	)

	graphMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_mutations_total",
			Help: "Graph mutator actions (updated, created, conflict_updated).",
		},
		[]string{"action"},
	)

	commitEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commit_events_total",
			Help: "Commit events consumed from kafka by result.",
		},
		[]string{"result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		resolutionsTotal,
		graphOpTotal, graphOpDurationSeconds,
		routeLatencySeconds, routeCandidates,
		modelPredictionsTotal,
		graphMutationsTotal,
		commitEventsTotal,
	}
}

// Init registers the collectors on reg. Collectors are still updated when
// disabled so tests can read them directly.
func Init(reg prometheus.Registerer, on bool) {
	if !on || reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveGraphOp(backend, op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	graphOpTotal.WithLabelValues(backend, op, result).Inc()
	graphOpDurationSeconds.WithLabelValues(backend, op).Observe(durationSeconds)
}

func ObserveRoute(err error, candidates int, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		routeCandidates.Observe(float64(candidates))
	}
	routeLatencySeconds.WithLabelValues(result).Observe(durationSeconds)
}

func IncModelPrediction(err error) {
	if err != nil {
		modelPredictionsTotal.WithLabelValues("error").Inc()
		return
	}
	modelPredictionsTotal.WithLabelValues("ok").Inc()
}

func IncGraphMutation(action string) {
	graphMutationsTotal.WithLabelValues(action).Inc()
}

func IncCommitEvent(result string) {
	commitEventsTotal.WithLabelValues(result).Inc()
}
