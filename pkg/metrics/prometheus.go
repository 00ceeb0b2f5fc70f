package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch duration buckets in seconds
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Prometheus wraps prometheus collectors for the query cache.
type Prometheus struct {
	registry *prometheus.Registry

	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	joins    *prometheus.CounterVec
	discards *prometheus.CounterVec
	fetches  *prometheus.CounterVec

	fetchDuration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them on a fresh registry,
// together with the default Go and process collectors.
func NewPrometheus(namespace string) *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	p := &Prometheus{
		registry: registry,
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Queries answered from a fresh cache entry",
			},
			[]string{"resource"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Queries that started a fetch",
			},
			[]string{"resource"},
		),
		joins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_joins_total",
				Help:      "Queries attached to a fetch already in flight",
			},
			[]string{"resource"},
		),
		discards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_discarded_responses_total",
				Help:      "Responses dropped because a newer fetch superseded them",
			},
			[]string{"resource"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Completed fetches by outcome",
			},
			[]string{"resource", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Fetch duration in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"resource", "outcome"},
		),
	}

	registry.MustRegister(p.hits, p.misses, p.joins, p.discards, p.fetches, p.fetchDuration)
	return p
}

func (p *Prometheus) Hit(resource string) {
	p.hits.WithLabelValues(resource).Inc()
}

func (p *Prometheus) Miss(resource string) {
	p.misses.WithLabelValues(resource).Inc()
}

func (p *Prometheus) Join(resource string) {
	p.joins.WithLabelValues(resource).Inc()
}

func (p *Prometheus) Discard(resource string) {
	p.discards.WithLabelValues(resource).Inc()
}

func (p *Prometheus) Fetch(resource, outcome string, duration time.Duration) {
	p.fetches.WithLabelValues(resource, outcome).Inc()
	p.fetchDuration.WithLabelValues(resource, outcome).Observe(duration.Seconds())
}

// Handler returns the HTTP handler exposing the registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
