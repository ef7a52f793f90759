// Package metrics exposes the oracle's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts validated submissions by decision and reason code.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridoracle_submissions_total",
		Help: "Trade submissions by validation decision and reason code.",
	}, []string{"decision", "reason"})

	// DuplicateSubmissions counts idempotent replays of already-decided submissions.
	DuplicateSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridoracle_duplicate_submissions_total",
		Help: "Submissions replayed from the ledger without re-processing.",
	})

	// QueueDepth tracks the number of approved trades awaiting settlement.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridoracle_queue_depth",
		Help: "Approved trades currently waiting in the batch queue.",
	})

	// BatchesTotal counts settled batches by final status.
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridoracle_batches_total",
		Help: "Settlement batches by outcome.",
	}, []string{"status"})

	// SettlementDuration observes the submit-to-resolution latency of batches.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridoracle_settlement_duration_seconds",
		Help:    "Time from batch submission to a resolved settlement outcome.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// WeatherLookupsTotal counts weather oracle lookups by result.
	WeatherLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridoracle_weather_lookups_total",
		Help: "Weather oracle lookups by result (ok or unavailable).",
	}, []string{"result"})
)
