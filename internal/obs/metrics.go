package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	SearchesTotal       prometheus.Counter
	RateLimitDropsTotal prometheus.Counter

	SupplierErrors      *prometheus.CounterVec
	SupplierLatency     *prometheus.HistogramVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	Registry            *prometheus.Registry
}

// Create Prometheus collectors and register them
func NewMetrics(p *prometheus.Registry) *Metrics {
	m := &Metrics{
		SearchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_searches_total",
			Help: "Total number of incoming part searches",
		}),
		RateLimitDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_ratelimit_drops_total",
			Help: "Requests dropped due to rate limiting",
		}),
		SupplierErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supplier_errors_total",
			Help: "Failed search calls per supplier",
		}, []string{"supplier"},
		),
		SupplierLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supplier_latency_seconds",
				Help:    "Latency of upstream supplier calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"supplier"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		Registry: p,
	}

	p.MustRegister(
		m.SearchesTotal,
		m.RateLimitDropsTotal,
		m.SupplierErrors,
		m.SupplierLatency,
		m.HTTPRequestDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) IncSearches() { m.SearchesTotal.Inc() }

func (m *Metrics) IncRateLimitDrops() { m.RateLimitDropsTotal.Inc() }

func (m *Metrics) ObserveSupplierLatency(supplier string, seconds float64) {
	m.SupplierLatency.WithLabelValues(supplier).Observe(seconds)
}

func (m *Metrics) IncSupplierFailure(supplier string) {
	m.SupplierErrors.WithLabelValues(supplier).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
