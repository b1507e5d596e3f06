// Package metrics publishes Prometheus metrics for selections, rule-set
// compiles and repository cache traffic.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kamipay/pixrouter/internal/rules"
	"github.com/kamipay/pixrouter/internal/types"
)

// CacheOutcome labels a repository cache operation result.
type CacheOutcome string

const (
	CacheHit    CacheOutcome = "hit"
	CacheMiss   CacheOutcome = "miss"
	CacheStored CacheOutcome = "stored"
	CacheError  CacheOutcome = "error"
)

// Recorder publishes Prometheus metrics for selector activity. A nil
// Recorder is valid and records nothing, so instrumentation points never
// need nil checks.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	decisions        *prometheus.CounterVec
	selectionLatency *prometheus.HistogramVec

	compiles        *prometheus.CounterVec
	compileDuration prometheus.Histogram

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixrouter",
		Subsystem: "selector",
		Name:      "decisions_total",
		Help:      "Routing decisions by reason and route.",
	}, []string{"reason", "route"})

	selectionLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pixrouter",
		Subsystem: "selector",
		Name:      "selection_duration_seconds",
		Help:      "Latency distribution for gateway selections.",
		Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	}, []string{"reason"})

	compiles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixrouter",
		Subsystem: "compiler",
		Name:      "compiles_total",
		Help:      "Rule-set compilations by outcome.",
	}, []string{"outcome"})

	compileDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixrouter",
		Subsystem: "compiler",
		Name:      "compile_duration_seconds",
		Help:      "Latency distribution for rule-set compilations.",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixrouter",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Repository cache operations by result.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pixrouter",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for repository cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	reg.MustRegister(decisions, selectionLatency, compiles, compileDuration, cacheOperations, cacheLatency)

	return &Recorder{
		gatherer:         reg,
		handler:          promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		decisions:        decisions,
		selectionLatency: selectionLatency,
		compiles:         compiles,
		compileDuration:  compileDuration,
		cacheOperations:  cacheOperations,
		cacheLatency:     cacheLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveDecision records one routing decision and its latency.
func (r *Recorder) ObserveDecision(dec rules.Decision, duration time.Duration) {
	if r == nil {
		return
	}
	reason := normalizeLabel(dec.Reason)
	r.decisions.WithLabelValues(reason, normalizeLabel(dec.Route)).Inc()
	r.selectionLatency.WithLabelValues(reason).Observe(duration.Seconds())
}

// DecisionHook adapts the recorder to the selector's observation callback.
// Selection latency is not visible to the hook, so only the decision counter
// moves; callers wanting latency call ObserveDecision directly.
func (r *Recorder) DecisionHook() rules.DecisionHook {
	return func(dec rules.Decision, _ types.Context) {
		if r == nil {
			return
		}
		r.decisions.WithLabelValues(normalizeLabel(dec.Reason), normalizeLabel(dec.Route)).Inc()
	}
}

// ObserveCompile records one rule-set compilation.
func (r *Recorder) ObserveCompile(err error, duration time.Duration) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.compiles.WithLabelValues(outcome).Inc()
	r.compileDuration.Observe(duration.Seconds())
}

// ObserveCacheLookup records a repository cache read.
func (r *Recorder) ObserveCacheLookup(result CacheOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	r.observeCache("lookup", string(result), duration)
}

// ObserveCacheStore records a repository cache write.
func (r *Recorder) ObserveCacheStore(result CacheOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	r.observeCache("store", string(result), duration)
}

func (r *Recorder) observeCache(operation, result string, duration time.Duration) {
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(operation, resLabel).Inc()
	r.cacheLatency.WithLabelValues(operation, resLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "none"
	}
	return trimmed
}
