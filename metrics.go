package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// History page views by response status
	PageViews *prometheus.CounterVec

	// Publish events rendered on history pages
	RenderedEvents prometheus.Counter

	// Changes rendered without a schema, by node type
	MissingNodeTypes *prometheus.CounterVec

	QueryLatency prometheus.Histogram
}

// NewMetrics registers the history metrics with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PageViews: f.NewCounterVec(prometheus.CounterOpts{
			Name: "history_page_views_total",
			Help: "History page requests by response status",
		}, []string{"status"}),

		RenderedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "history_rendered_events_total",
			Help: "Publish events rendered on history pages",
		}),

		MissingNodeTypes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "history_missing_node_types_total",
			Help: "Change events whose node type is not known",
		}, []string{"node_type"}),

		QueryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "history_query_duration_seconds",
			Help:    "Duration of the publish event query",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementPageViews(status int) {
	if m != nil {
		m.PageViews.WithLabelValues(statusLabel(status)).Inc()
	}
}

func (m *Metrics) AddRenderedEvents(n int) {
	if m != nil {
		m.RenderedEvents.Add(float64(n))
	}
}

func (m *Metrics) IncrementMissingNodeType(nodeType string) {
	if m != nil {
		m.MissingNodeTypes.WithLabelValues(nodeType).Inc()
	}
}

func (m *Metrics) ObserveQueryLatency(d time.Duration) {
	if m != nil {
		m.QueryLatency.Observe(d.Seconds())
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
