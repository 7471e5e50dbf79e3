// Package metrics exposes exchange counters and histograms to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/efreitasn/pairexchange/internal/lock"
	"github.com/efreitasn/pairexchange/internal/settlement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairexchange"

// Metrics holds the exchange collectors. It implements lock.Observer,
// settlement.Observer and service.OrderObserver.
type Metrics struct {
	registry *prometheus.Registry

	settlementPasses   *prometheus.CounterVec
	settlementDuration prometheus.Histogram
	trades             prometheus.Counter
	lockAcquisitions   *prometheus.CounterVec
	orders             *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		settlementPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_passes_total",
			Help:      "Settlement passes by result.",
		}, []string{"result"}),
		settlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Wall time of settlement passes in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades committed by settlement passes.",
		}),
		lockAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "Pair lease acquisition attempts by outcome.",
		}, []string{"outcome"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order lifecycle events.",
		}, []string{"event"}),
	}
	m.registry.MustRegister(
		m.settlementPasses,
		m.settlementDuration,
		m.trades,
		m.lockAcquisitions,
		m.orders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveLock counts a lease acquisition attempt.
func (m *Metrics) ObserveLock(outcome lock.Outcome) {
	m.lockAcquisitions.WithLabelValues(string(outcome)).Inc()
}

// ObserveSettlement records a finished Settle call.
func (m *Metrics) ObserveSettlement(result settlement.Result, trades int, elapsed time.Duration) {
	m.settlementPasses.WithLabelValues(string(result)).Inc()
	if result != settlement.ResultContended {
		m.settlementDuration.Observe(elapsed.Seconds())
	}
	m.trades.Add(float64(trades))
}

// ObserveOrder counts an order event.
func (m *Metrics) ObserveOrder(event string) {
	m.orders.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
