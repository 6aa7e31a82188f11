// Package metrics exposes Prometheus collectors for simulation batches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "montecarlo"

// Metrics holds the simulator's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BatchesTotal        *prometheus.CounterVec
	RunsTotal           prometheus.Counter
	TradesTotal         prometheus.Counter
	RejectedTotal       prometheus.Counter
	BatchDuration       *prometheus.HistogramVec
	LastLossProbability prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed simulation batches by sizing mode and execution mode.",
		}, []string{"sizing", "execution"}),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Simulated runs across all batches.",
		}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Simulated trades across all runs.",
		}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Batches rejected because of invalid parameters.",
		}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a simulation batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"execution"}),
		LastLossProbability: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_loss_probability_percent",
			Help:      "Loss probability of the most recent batch.",
		}),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.RunsTotal,
		m.TradesTotal,
		m.RejectedTotal,
		m.BatchDuration,
		m.LastLossProbability,
	)

	return m
}

// ObserveBatch records a completed batch
func (m *Metrics) ObserveBatch(sizing string, parallel bool, runs, tradesPerRun int, elapsed time.Duration) {
	if m == nil {
		return
	}

	execution := executionLabel(parallel)
	m.BatchesTotal.WithLabelValues(sizing, execution).Inc()
	m.RunsTotal.Add(float64(runs))
	m.TradesTotal.Add(float64(runs * tradesPerRun))
	m.BatchDuration.WithLabelValues(execution).Observe(elapsed.Seconds())
}

// ObserveLossProbability records the loss probability of the latest summary
func (m *Metrics) ObserveLossProbability(pct float64) {
	if m == nil {
		return
	}
	m.LastLossProbability.Set(pct)
}

// ObserveRejected records a batch refused for invalid parameters
func (m *Metrics) ObserveRejected() {
	if m == nil {
		return
	}
	m.RejectedTotal.Inc()
}

func executionLabel(parallel bool) string {
	if parallel {
		return "parallel"
	}
	return "sequential"
}
