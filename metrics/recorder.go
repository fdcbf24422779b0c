// backend/metrics/recorder.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Cache result label values.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheShared = "shared"
)

// Recorder is the Prometheus instrumentation for the fetch/pipeline/cache path.
// It owns a private registry so tests can build as many as they like.
type Recorder struct {
	registry *prometheus.Registry

	fetchDuration    *prometheus.HistogramVec
	pipelineRuns     *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	cacheRequests    *prometheus.CounterVec
}

// NewRecorder creates a Recorder with Go runtime and process collectors attached.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "covid19_fetch_duration_seconds",
			Help:    "Duration of remote source fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source", "outcome"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "covid19_pipeline_runs_total",
			Help: "Total number of dataset pipeline executions by outcome.",
		}, []string{"outcome"}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "covid19_pipeline_duration_seconds",
			Help:    "Duration of full dataset pipeline executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "covid19_cache_requests_total",
			Help: "Dataset cache lookups by result (hit, miss, shared).",
		}, []string{"result"}),
	}

	registry.MustRegister(r.fetchDuration)
	registry.MustRegister(r.pipelineRuns)
	registry.MustRegister(r.pipelineDuration)
	registry.MustRegister(r.cacheRequests)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one remote fetch.
func (r *Recorder) ObserveFetch(source string, elapsed time.Duration, err error) {
	r.fetchDuration.WithLabelValues(source, outcome(err)).Observe(elapsed.Seconds())
}

// ObservePipeline records one full pipeline run.
func (r *Recorder) ObservePipeline(elapsed time.Duration, err error) {
	r.pipelineRuns.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		r.pipelineDuration.Observe(elapsed.Seconds())
	}
}

// CacheRequest counts one cache lookup.
func (r *Recorder) CacheRequest(result string) {
	r.cacheRequests.WithLabelValues(result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
