// Package metrics exposes Prometheus instrumentation for scrape runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the fetch and scrape layers report into.
// A nil *Metrics is a valid no-op Recorder.
type Recorder interface {
	CacheHit()
	CacheMiss()
	Request(status string)
	Retry()
	TargetDone(kind string, ok bool, seconds float64)
}

var _ Recorder = (*Metrics)(nil)

// Metrics holds the registered collectors.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	Requests       *prometheus.CounterVec
	Retries        prometheus.Counter
	Targets        *prometheus.CounterVec
	TargetDuration *prometheus.HistogramVec
}

// New creates and registers the collectors. If no registerer is provided,
// it uses the default Prometheus registerer.
func New(registerer ...prometheus.Registerer) *Metrics {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vlr_cache_hits_total",
			Help: "Pages served from the response cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vlr_cache_misses_total",
			Help: "Pages not found (or stale) in the response cache.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vlr_http_requests_total",
			Help: "Outbound page requests by final status.",
		}, []string{"status"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vlr_http_retries_total",
			Help: "Retries issued for transient failures.",
		}),
		Targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vlr_targets_total",
			Help: "Scrape targets processed by kind and outcome.",
		}, []string{"kind", "outcome"}),
		TargetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vlr_target_duration_seconds",
			Help:    "Wall time to fetch, parse and save one target.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.Requests,
		m.Retries,
		m.Targets,
		m.TargetDuration,
	)
	return m
}

// Handler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func Handler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) Request(status string) {
	if m != nil {
		m.Requests.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Retry() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) TargetDone(kind string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.Targets.WithLabelValues(kind, outcome).Inc()
	m.TargetDuration.WithLabelValues(kind).Observe(seconds)
}
