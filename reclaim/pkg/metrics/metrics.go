package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rent_reclaim_build_info",
			Help: "Build information of the rent reclaimer",
		},
		[]string{"version", "commit", "date"},
	)

	MonitoredAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rent_reclaim_monitored_accounts",
			Help: "Number of sponsored accounts found by the last discovery pass",
		},
	)

	LockedLamports = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rent_reclaim_locked_lamports",
			Help: "Total current balance across monitored accounts",
		},
	)

	ReclaimableAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rent_reclaim_reclaimable_accounts",
			Help: "Number of accounts judged safe to reclaim by the last evaluation",
		},
	)

	ReclaimableLamports = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rent_reclaim_reclaimable_lamports",
			Help: "Estimated recoverable lamports from the last evaluation",
		},
	)

	LastScanTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rent_reclaim_last_scan_timestamp_seconds",
			Help: "Unix time of the last completed full cycle",
		},
	)

	ClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rent_reclaim_classified_total",
			Help: "Total number of accounts classified reclaimable, by reason",
		},
		[]string{"reason"},
	)

	ReclaimAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rent_reclaim_attempts_total",
			Help: "Total number of reclaim attempts",
		},
		[]string{"status"},
	)

	ReclaimedLamportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rent_reclaim_reclaimed_lamports_total",
			Help: "Total lamports moved to the treasury",
		},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rent_reclaim_cycles_total",
			Help: "Total number of full discover/evaluate/reclaim cycles",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rent_reclaim_cycle_duration_seconds",
			Help:    "Duration of full cycles",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34 minutes
		},
	)

	LedgerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rent_reclaim_ledger_requests_total",
			Help: "Total number of ledger RPC requests",
		},
		[]string{"method", "status"},
	)

	LedgerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rent_reclaim_ledger_request_duration_seconds",
			Help:    "Duration of ledger RPC requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"method"},
	)
)

// RecordLedgerRequest records metrics for a single RPC method call.
func RecordLedgerRequest(method string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	LedgerRequestsTotal.WithLabelValues(method, status).Inc()
	LedgerRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordReclaimAttempt records the outcome of one reclaim attempt.
func RecordReclaimAttempt(success bool, lamports uint64) {
	if !success {
		ReclaimAttemptsTotal.WithLabelValues("failure").Inc()
		return
	}
	ReclaimAttemptsTotal.WithLabelValues("success").Inc()
	ReclaimedLamportsTotal.Add(float64(lamports))
}

// RecordCycle records a completed full cycle.
func RecordCycle(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(duration.Seconds())
}
