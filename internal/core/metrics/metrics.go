// Package metrics exposes Prometheus metrics for the scrub API.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/solatis/claimscrub/internal/rules"
)

// Metrics holds all Prometheus metrics for the scrub API.
// Each instance owns its registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	ClaimsScrubbed *prometheus.CounterVec
	RuleMatches    *prometheus.CounterVec
	RuleErrors     *prometheus.CounterVec
	RulesLoaded    prometheus.Gauge

	ConflictsDetected   *prometheus.GaugeVec
	ConflictTruncations prometheus.Counter
	TestRuns            prometheus.Counter

	RPCRequests *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ClaimsScrubbed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimscrub_claims_scrubbed_total",
			Help: "Claims scrubbed, labeled by outcome (clean, flagged, denied)",
		}, []string{"outcome"}),
		RuleMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimscrub_rule_matches_total",
			Help: "Rule matches during scrubbing, labeled by rule",
		}, []string{"rule_id"}),
		RuleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimscrub_rule_errors_total",
			Help: "Rule evaluation failures during scrubbing, labeled by rule",
		}, []string{"rule_id"}),
		RulesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "claimscrub_rules_loaded",
			Help: "Rules in the current engine snapshot",
		}),
		ConflictsDetected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "claimscrub_conflicts_detected",
			Help: "Conflicts found by the last detection run, labeled by type",
		}, []string{"type"}),
		ConflictTruncations: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimscrub_conflict_detection_truncated_total",
			Help: "Detection runs that hit their budget or deadline",
		}),
		TestRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimscrub_test_runs_total",
			Help: "Test harness runs",
		}),
		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimscrub_rpc_requests_total",
			Help: "gRPC requests, labeled by method and status code",
		}, []string{"method", "code"}),
		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimscrub_rpc_latency_seconds",
			Help:    "gRPC handler latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Registry returns the registry holding these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveScrub records one scrub report.
func (m *Metrics) ObserveScrub(report *rules.ScrubReport) {
	outcome := "clean"
	for _, res := range report.Results {
		if res.Matched {
			m.RuleMatches.WithLabelValues(string(res.RuleID)).Inc()
			outcome = "flagged"
		}
		if res.Error != "" {
			m.RuleErrors.WithLabelValues(string(res.RuleID)).Inc()
		}
	}
	if report.Denied {
		outcome = "denied"
	}
	m.ClaimsScrubbed.WithLabelValues(outcome).Inc()
}

// ObserveConflicts records a detection run.
func (m *Metrics) ObserveConflicts(report *rules.ConflictReport) {
	counts := map[string]int{"precedence": 0, "contradiction": 0, "overlap": 0}
	for _, c := range report.Conflicts {
		counts[string(c.Type)]++
	}
	for kind, n := range counts {
		m.ConflictsDetected.WithLabelValues(kind).Set(float64(n))
	}
	if report.Truncated {
		m.ConflictTruncations.Inc()
	}
}

// UnaryInterceptor records request counts and latency per method.
func (m *Metrics) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RPCLatency.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		m.RPCRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}
