// Package telemetry exports live run metrics in the Prometheus exposition format.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferload/inferload/internal/performance/metrics"
	"github.com/inferload/inferload/internal/performance/request"
)

const namespace = "inferload"

// Observer records outcomes and scheduler state as Prometheus metrics. It
// implements metrics.Observer and metrics.StateObserver and owns its registry,
// so several runs in one process never collide.
type Observer struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	ttfb      *prometheus.HistogramVec
	tokens    *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	activeVUs prometheus.Gauge
	phase     *prometheus.GaugeVec

	mu        sync.Mutex
	lastPhase prometheus.Labels
}

// NewObserver builds an observer. testName, when set, is attached to every
// series as the "test" label.
func NewObserver(testName string) *Observer {
	constLabels := prometheus.Labels{}
	if testName != "" {
		constLabels["test"] = testName
	}

	o := &Observer{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_total",
			Help:        "Completed requests by concurrency tag and result.",
			ConstLabels: constLabels,
		}, []string{"tag", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "request_failures_total",
			Help:        "Failed requests by concurrency tag and failure reason.",
			ConstLabels: constLabels,
		}, []string{"tag", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "request_duration_seconds",
			Help:        "End-to-end request latency.",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
			ConstLabels: constLabels,
		}, []string{"tag"}),
		ttfb: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "time_to_first_byte_seconds",
			Help:        "Time until the first response byte.",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
			ConstLabels: constLabels,
		}, []string{"tag"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tokens_total",
			Help:        "Tokens reported by the server, by kind.",
			ConstLabels: constLabels,
		}, []string{"tag", "kind"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "response_bytes_total",
			Help:        "Response body bytes received.",
			ConstLabels: constLabels,
		}, []string{"tag"}),
		activeVUs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_vus",
			Help:        "Live virtual users, including those draining.",
			ConstLabels: constLabels,
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "phase",
			Help:        "1 for the current run phase and concurrency tag.",
			ConstLabels: constLabels,
		}, []string{"phase", "tag"}),
	}

	o.registry.MustRegister(o.requests, o.failures, o.duration, o.ttfb,
		o.tokens, o.bytes, o.activeVUs, o.phase)
	return o
}

// Observe records one outcome.
func (o *Observer) Observe(out request.Outcome) {
	result := "success"
	if out.Failed() {
		result = "failure"
		o.failures.WithLabelValues(out.Tag, string(out.Reason)).Inc()
	}
	o.requests.WithLabelValues(out.Tag, result).Inc()
	o.duration.WithLabelValues(out.Tag).Observe(out.Duration.Seconds())
	if out.TTFB > 0 {
		o.ttfb.WithLabelValues(out.Tag).Observe(out.TTFB.Seconds())
	}
	if out.Usage.PromptTokens > 0 {
		o.tokens.WithLabelValues(out.Tag, "prompt").Add(float64(out.Usage.PromptTokens))
	}
	if out.Usage.CompletionTokens > 0 {
		o.tokens.WithLabelValues(out.Tag, "completion").Add(float64(out.Usage.CompletionTokens))
	}
	if out.BytesReceived > 0 {
		o.bytes.WithLabelValues(out.Tag).Add(float64(out.BytesReceived))
	}
}

// SetActiveVUs sets the live VU gauge.
func (o *Observer) SetActiveVUs(n int) {
	o.activeVUs.Set(float64(n))
}

// SetPhase moves the phase gauge to phase and tag.
func (o *Observer) SetPhase(phase metrics.Phase, tag string) {
	labels := prometheus.Labels{"phase": string(phase), "tag": tag}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastPhase != nil {
		o.phase.Delete(o.lastPhase)
	}
	o.phase.With(labels).Set(1)
	o.lastPhase = labels
}

// Registry returns the registry holding the observer's collectors.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the observer's metrics.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
