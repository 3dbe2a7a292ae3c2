package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exports inference, cache, agent and selection counters.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	inferenceAttempts *prometheus.CounterVec
	inferenceWaits    *prometheus.HistogramVec
	fallbacks         *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	agentRuns         *prometheus.CounterVec
	agentLatency      *prometheus.HistogramVec
	selectionRuns     *prometheus.CounterVec
}

// New creates a recorder on its own registry, so engines can be rebuilt
// without duplicate registration.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		inferenceAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexquant_inference_attempts_total",
				Help: "Inference attempts by outcome",
			},
			[]string{"outcome"},
		),
		inferenceWaits: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortexquant_inference_wait_seconds",
				Help:    "Time spent waiting before an inference attempt",
				Buckets: []float64{0.01, 0.1, 0.3, 1, 2, 5, 10, 15},
			},
			[]string{"reason"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexquant_inference_fallbacks_total",
				Help: "Inference calls answered by the caller fallback",
			},
			[]string{"schema"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexquant_cache_lookups_total",
				Help: "Read-through cache lookups",
			},
			[]string{"cache", "result"},
		),
		agentRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexquant_agent_runs_total",
				Help: "Agent executions by status",
			},
			[]string{"agent", "status"},
		),
		agentLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortexquant_agent_duration_seconds",
				Help:    "Agent execution time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		selectionRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexquant_selection_requests_total",
				Help: "Selection requests by how they were served",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RecordInferenceAttempt(outcome string) {
	if r == nil {
		return
	}
	r.inferenceAttempts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordInferenceWait(reason string, d time.Duration) {
	if r == nil {
		return
	}
	r.inferenceWaits.WithLabelValues(reason).Observe(d.Seconds())
}

func (r *Recorder) RecordFallback(schema string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(schema).Inc()
}

func (r *Recorder) RecordCacheLookup(cache, result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (r *Recorder) RecordAgentRun(agent, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.agentRuns.WithLabelValues(agent, status).Inc()
	r.agentLatency.WithLabelValues(agent).Observe(d.Seconds())
}

func (r *Recorder) RecordSelection(result string) {
	if r == nil {
		return
	}
	r.selectionRuns.WithLabelValues(result).Inc()
}
