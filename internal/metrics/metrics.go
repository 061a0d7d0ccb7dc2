// Package metrics exposes the Prometheus instrumentation operators use to
// watch the hedge trader: tick-to-order latency, spread observations, and
// order outcomes by venue. Scraped by internal/httpserver's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the trader and strategy touch. The zero
// value is not usable; construct with New so each collector is registered
// exactly once against the given registry.
type Metrics struct {
	TickToOrderLatency *prometheus.HistogramVec
	SpreadObserved     *prometheus.HistogramVec
	SignalsTotal       *prometheus.CounterVec
	OrdersTotal        *prometheus.CounterVec
	ActiveLocks        prometheus.Gauge
	ReconnectsTotal    *prometheus.CounterVec
}

// New registers and returns a fresh Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the package-level
// default registry across parallel test runs.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TickToOrderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hedgearb",
				Subsystem: "trader",
				Name:      "tick_to_order_latency_ms",
				Help:      "Latency from BBO tick to order submission in milliseconds.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"symbol"},
		),
		SpreadObserved: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hedgearb",
				Subsystem: "strategy",
				Name:      "spread_observed",
				Help:      "Inter-venue spread at signal evaluation time.",
				Buckets:   []float64{-0.01, -0.005, 0, 0.002, 0.005, 0.01, 0.02, 0.05},
			},
			[]string{"symbol", "kind"}, // kind: open|close
		),
		SignalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hedgearb",
				Subsystem: "strategy",
				Name:      "signals_total",
				Help:      "Signals generated, by symbol and kind.",
			},
			[]string{"symbol", "kind"},
		),
		OrdersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hedgearb",
				Subsystem: "trader",
				Name:      "orders_total",
				Help:      "Orders submitted, by venue and outcome.",
			},
			[]string{"venue", "outcome"}, // outcome: ok|failed
		),
		ActiveLocks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hedgearb",
				Subsystem: "trader",
				Name:      "active_symbol_locks",
				Help:      "Number of symbols currently holding the single-flight order lock.",
			},
		),
		ReconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hedgearb",
				Subsystem: "venue",
				Name:      "reconnects_total",
				Help:      "WS session reconnects observed, by venue and stream.",
			},
			[]string{"venue", "stream"},
		),
	}
}
