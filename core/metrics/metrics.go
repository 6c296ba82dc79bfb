// Package metrics declares the Prometheus collectors of the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Update handling
var (
	// UpdatesTotal counts handled Telegram updates by kind and status.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcfbot_updates_total",
			Help: "Handled Telegram updates by kind and status",
		},
		[]string{"kind", "status"},
	)

	// UpdateDuration tracks handler latency in seconds.
	UpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vcfbot_update_duration_seconds",
			Help:    "Handler duration in seconds by update kind",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	// MessagesSent counts outbound messages produced by handlers.
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vcfbot_messages_sent_total",
			Help: "Messages sent or edited by update handlers",
		},
	)
)

// Batch processing
var (
	// DispatchesTotal counts dispatched batches by mode and outcome.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcfbot_dispatches_total",
			Help: "Dispatched batches by mode and outcome (ok/partial/fail)",
		},
		[]string{"mode", "outcome"},
	)

	// FilesProcessed counts per-file transformations by mode and outcome.
	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcfbot_files_processed_total",
			Help: "Per-file transformations by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// BatchSize tracks the number of files per dispatched batch.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcfbot_batch_files",
			Help:    "Files per dispatched batch",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
	)

	// DispatchDuration tracks batch processing time in seconds.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vcfbot_dispatch_duration_seconds",
			Help:    "Batch processing duration in seconds by mode",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	// ActiveSessions reports the number of sessions held in memory.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcfbot_sessions_current",
			Help: "Sessions held in memory",
		},
	)
)

// Delivery
var (
	// SendAttempts counts outbound send attempts by result (ok/retry/fail).
	SendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcfbot_send_attempts_total",
			Help: "Outbound send attempts by result",
		},
		[]string{"result"},
	)

	// MembershipChecks counts access gate checks by outcome.
	MembershipChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcfbot_membership_checks_total",
			Help: "Access gate checks by outcome (member/not_member/error)",
		},
		[]string{"outcome"},
	)

	// JournalErrors counts task journal write failures.
	JournalErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vcfbot_journal_errors_total",
			Help: "Task journal write failures",
		},
	)
)
