package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of the swap service.
type Metrics struct {
	SwapsTotal      *prometheus.CounterVec
	QuotesTotal     *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	SwapSegments    *prometheus.HistogramVec
	SwapDuration    *prometheus.HistogramVec
	PriceImpactBP   *prometheus.HistogramVec
	PoolsRegistered prometheus.Gauge
	SinkFailures    *prometheus.CounterVec
	HTTPRequests    *prometheus.HistogramVec
}

// New registers every collector on reg. Passing a fresh registry keeps
// tests independent of the global one.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SwapsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Swaps attempted, labeled by pool and outcome.",
		}, []string{"pool", "outcome"}),

		QuotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Quotes served, labeled by pool and outcome.",
		}, []string{"pool", "outcome"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Engine errors by kind.",
		}, []string{"kind"}),

		SwapSegments: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "swap_segments",
			Help:      "Liquidity segments per executed swap.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 16},
		}, []string{"pool"}),

		SwapDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "swap_duration_seconds",
			Help:      "Time spent executing a swap, sinks included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pool"}),

		PriceImpactBP: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "swap_price_impact_bp",
			Help:      "Marginal price impact of executed swaps in basis points.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"pool"}),

		PoolsRegistered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pools_registered",
			Help:      "Pools currently held by the registry.",
		}),

		SinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed trade publications and recordings, labeled by sink.",
		}, []string{"sink"}),

		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency, labeled by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}
