package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LocationSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleet", Name: "location_samples_total", Help: "Location samples by outcome"},
		[]string{"result"},
	)
	BackgroundBatches = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fleet", Name: "background_batches_total", Help: "Batches delivered by the background location task"})

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleet",
			Name:      "gateway_request_duration_seconds",
			Help:      "Backend request latency by endpoint and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	RosterFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleet", Name: "roster_fetches_total", Help: "Roster fetches by filter and outcome"},
		[]string{"filter", "result"},
	)
	MarkersDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fleet", Name: "markers_dropped_total", Help: "Drivers skipped for invalid coordinates"})

	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "fleet", Name: "live_clients", Help: "Connected live map clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleet", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleet",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
