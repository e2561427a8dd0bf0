// Package metrics holds the Prometheus collectors of the sync engine. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	salesSynced         *prometheus.CounterVec
	syncDuration        prometheus.Histogram
	stockClamped        prometheus.Counter
	aggregationRuns     *prometheus.CounterVec
	aggregationDropped  prometheus.Counter
	aggregationDuration prometheus.Histogram
	fanoutPublished     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		salesSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "sales_synced_total",
			Help:      "Offline sales processed, by outcome.",
		}, []string{"status"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "possync",
			Name:      "sale_sync_duration_seconds",
			Help:      "Time spent persisting one offline sale.",
			Buckets:   prometheus.DefBuckets,
		}),
		stockClamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "stock_clamped_total",
			Help:      "Stock changes floored at zero because of oversell.",
		}),
		aggregationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "aggregation_runs_total",
			Help:      "Daily summary recomputations, by result.",
		}, []string{"result"}),
		aggregationDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "aggregation_jobs_dropped_total",
			Help:      "Recompute jobs dropped because the queue was full.",
		}),
		aggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "possync",
			Name:      "aggregation_duration_seconds",
			Help:      "Time spent recomputing one store day.",
			Buckets:   prometheus.DefBuckets,
		}),
		fanoutPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "fanout_events_total",
			Help:      "Realtime events handed to the publisher, by result.",
		}, []string{"type", "result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.salesSynced,
			m.syncDuration,
			m.stockClamped,
			m.aggregationRuns,
			m.aggregationDropped,
			m.aggregationDuration,
			m.fanoutPublished,
		)
	}
	return m
}

func (m *Metrics) SaleSynced(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.salesSynced.WithLabelValues(status).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) StockClamped() {
	if m == nil {
		return
	}
	m.stockClamped.Inc()
}

func (m *Metrics) AggregationRun(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.aggregationRuns.WithLabelValues(result).Inc()
	m.aggregationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AggregationDropped() {
	if m == nil {
		return
	}
	m.aggregationDropped.Inc()
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fanoutPublished.WithLabelValues(eventType, result).Inc()
}
