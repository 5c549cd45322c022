// Package metrics holds the service's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragchat"

// Outcome labels for chat requests.
const (
	OutcomeOK         = "ok"
	OutcomeBadRequest = "bad_request"
	OutcomeError      = "error"
)

// Metrics groups the collectors used by the HTTP layer and index provider.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests  *prometheus.CounterVec
	ChatDuration  prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
	IndexOpens    *prometheus.CounterVec
	RetrievedDocs prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat questions handled, by outcome.",
		}, []string{"outcome"}),
		ChatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "Time to answer a chat question.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"route", "code"}),
		IndexOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_opens_total",
			Help:      "Attempts to open the vector index, by result.",
		}, []string{"result"}),
		RetrievedDocs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Chunks handed to the model per question.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
	}
	m.registry.MustRegister(
		m.ChatRequests,
		m.ChatDuration,
		m.HTTPRequests,
		m.IndexOpens,
		m.RetrievedDocs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIndexOpen records the result of an index open.
func (m *Metrics) ObserveIndexOpen(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.IndexOpens.WithLabelValues(result).Inc()
}
