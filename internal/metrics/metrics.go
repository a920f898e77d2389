// Package metrics collects client-side Prometheus metrics and exposes them
// over HTTP.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeStale    = "stale"
	OutcomeFallback = "fallback"
)

// Recorder is used by the engine client, the session manager, the reconciler
// and the ledger service.
type Recorder interface {
	RecordFetchCycle(outcome string)
	RecordFetchLatency(d time.Duration)
	RecordReconcile(outcome string)
	RecordVerbFallback(from, to string)
	RecordAction(action, outcome string)
	RecordTokenRefresh(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	fetchCycles   *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	reconciles    *prometheus.CounterVec
	verbFallbacks *prometheus.CounterVec
	actions       *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ioukeeper_fetch_cycles_total",
			Help: "Fetch cycles by outcome.",
		}, []string{"outcome"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ioukeeper_fetch_latency_seconds",
			Help:    "Duration of a full fetch cycle including reconciliation.",
			Buckets: prometheus.DefBuckets,
		}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ioukeeper_reconcile_total",
			Help: "Derived amount reconciliations by outcome.",
		}, []string{"outcome"}),
		verbFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ioukeeper_verb_fallback_total",
			Help: "Requests retried with a fallback HTTP verb.",
		}, []string{"from", "to"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ioukeeper_actions_total",
			Help: "Invoked record actions by name and outcome.",
		}, []string{"action", "outcome"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ioukeeper_token_refresh_total",
			Help: "Access token refreshes by outcome.",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ioukeeper_engine_http_status_total",
			Help: "Engine responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.fetchCycles,
		c.fetchLatency,
		c.reconciles,
		c.verbFallbacks,
		c.actions,
		c.tokenRefresh,
		c.httpStatus,
	)

	return c
}

func (c *Collector) RecordFetchCycle(outcome string) {
	c.fetchCycles.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordFetchLatency(d time.Duration) {
	c.fetchLatency.Observe(d.Seconds())
}

func (c *Collector) RecordReconcile(outcome string) {
	c.reconciles.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordVerbFallback(from, to string) {
	c.verbFallbacks.WithLabelValues(from, to).Inc()
}

func (c *Collector) RecordAction(action, outcome string) {
	c.actions.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefresh.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFetchCycle(string)           {}
func (Nop) RecordFetchLatency(time.Duration)  {}
func (Nop) RecordReconcile(string)            {}
func (Nop) RecordVerbFallback(string, string) {}
func (Nop) RecordAction(string, string)       {}
func (Nop) RecordTokenRefresh(string)         {}
func (Nop) RecordHTTPStatus(int)              {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute mounts Handler on /metrics.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
