// Package metrics exposes Prometheus collectors for the settlement engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "sportsettle"

// Metrics holds every collector on its own registry so tests can build
// isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	itemsProcessed   *prometheus.CounterVec
	itemDuration     prometheus.Histogram
	receipts         *prometheus.CounterVec
	amounts          *prometheus.CounterVec
	marketsSettled   *prometheus.CounterVec
	safetyViolations prometheus.Counter
	reconciliations  prometheus.Counter
	sweep            *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		itemsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "items_processed_total",
			Help:      "Queue items processed, by result",
		}, []string{"result"}),
		itemDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "item_duration_seconds",
			Help:      "Time spent settling one queue item",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		receipts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "receipts_total",
			Help:      "Receipt outcomes, by type and status",
		}, []string{"type", "status"}),
		amounts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "amount_total",
			Help:      "Confirmed payout and refund amounts",
		}, []string{"type", "currency"}),
		marketsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "markets_total",
			Help:      "Markets moved to a terminal status",
		}, []string{"status"}),
		safetyViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "safety_violations_total",
			Help:      "Unlocked markets force-locked during settlement",
		}),
		reconciliations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "reconciliation_reports_total",
			Help:      "Non-empty reconciliation reports produced",
		}),
		sweep: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "sweep_items_total",
			Help:      "Queue items moved by the sweeper, by action",
		}, []string{"action"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items",
			Help:      "Queue items per status at last stats read",
		}, []string{"status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveItem(success bool, d time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.itemsProcessed.WithLabelValues(result).Inc()
	m.itemDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveReceipt(receiptType, status string) {
	m.receipts.WithLabelValues(receiptType, status).Inc()
}

func (m *Metrics) AddAmount(receiptType, currency string, amount decimal.Decimal) {
	m.amounts.WithLabelValues(receiptType, currency).Add(amount.InexactFloat64())
}

func (m *Metrics) ObserveMarket(status string) {
	m.marketsSettled.WithLabelValues(status).Inc()
}

func (m *Metrics) SafetyViolation() { m.safetyViolations.Inc() }

func (m *Metrics) Reconciliation() { m.reconciliations.Inc() }

func (m *Metrics) ObserveSweep(reclaimed, requeued, skipped int64) {
	m.sweep.WithLabelValues("reclaimed").Add(float64(reclaimed))
	m.sweep.WithLabelValues("requeued").Add(float64(requeued))
	m.sweep.WithLabelValues("skipped").Add(float64(skipped))
}

// SetQueueDepth records the latest per-status counts.
func (m *Metrics) SetQueueDepth(counts map[string]int64) {
	for status, n := range counts {
		m.queueDepth.WithLabelValues(status).Set(float64(n))
	}
}
