package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors exported on /metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transforms       *prometheus.CounterVec
	transformSeconds prometheus.Histogram
	refreshes        *prometheus.CounterVec
	catalogEvents    prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.transforms = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventfed",
		Name:      "transforms_total",
		Help:      "Event to ActivityStreams transformations by outcome",
	}, []string{"outcome"})
	m.transformSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventfed",
		Name:      "transform_duration_seconds",
		Help:      "Time spent transforming a single event",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	m.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventfed",
		Name:      "refresh_total",
		Help:      "Catalog refreshes by outcome",
	}, []string{"outcome"})
	m.catalogEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventfed",
		Name:      "catalog_events",
		Help:      "Events currently published",
	})

	m.registry.MustRegister(m.transforms, m.transformSeconds, m.refreshes, m.catalogEvents)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransform records one transformation.
func (m *Metrics) ObserveTransform(started time.Time, err error) {
	if m == nil {
		return
	}
	m.transformSeconds.Observe(time.Since(started).Seconds())
	m.transforms.WithLabelValues(outcome(err)).Inc()
}

// ObserveRefresh records one catalog refresh and the resulting size.
func (m *Metrics) ObserveRefresh(events int, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.catalogEvents.Set(float64(events))
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
