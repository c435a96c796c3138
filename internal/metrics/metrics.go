// Package metrics provides Prometheus metrics for the snapshot engine.
package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the snapshot source.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance.
	Registry *prometheus.Registry

	// UpdatesAppliedTotal counts successfully-applied trip updates, labeled
	// by their final classification (scheduled, added, modified, canceled).
	UpdatesAppliedTotal *prometheus.CounterVec

	// UpdatesRejectedTotal counts rejected trip updates, labeled by the
	// rejection reason taxonomy.
	UpdatesRejectedTotal *prometheus.CounterVec

	// CommitsTotal counts buffer-to-snapshot commits.
	CommitsTotal prometheus.Counter

	// PurgeRunsTotal counts purge passes that actually executed (i.e. were
	// not skipped because the cutoff had already been purged).
	PurgeRunsTotal prometheus.Counter

	// PurgeRemovedTotal counts overlay rows plus unreferenced dynamic
	// patterns removed across all purge runs.
	PurgeRemovedTotal prometheus.Counter

	// BufferDirty is 1 while the working buffer has unpublished changes.
	BufferDirty prometheus.Gauge

	// LastCommitAgeSeconds is sampled on each GetTimetableSnapshot call.
	LastCommitAgeSeconds prometheus.Gauge

	// logger for error reporting
	logger *slog.Logger
}

// New creates and registers all snapshot-engine metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	updatesAppliedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_updates_applied_total",
			Help: "Total number of trip updates successfully applied to the buffer",
		},
		[]string{"classification"},
	)

	updatesRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_updates_rejected_total",
			Help: "Total number of trip updates rejected, by reason",
		},
		[]string{"reason"},
	)

	commitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_commits_total",
		Help: "Total number of buffer-to-snapshot commits",
	})

	purgeRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_purge_runs_total",
		Help: "Total number of purge passes that executed",
	})

	purgeRemovedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_purge_removed_total",
		Help: "Total number of overlay rows and unreferenced dynamic patterns removed by purge",
	})

	bufferDirty := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapshot_buffer_dirty",
		Help: "1 while the working buffer has unpublished changes",
	})

	lastCommitAgeSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapshot_last_commit_age_seconds",
		Help: "Age in seconds of the most recently published snapshot",
	})

	registry.MustRegister(
		updatesAppliedTotal,
		updatesRejectedTotal,
		commitsTotal,
		purgeRunsTotal,
		purgeRemovedTotal,
		bufferDirty,
		lastCommitAgeSeconds,
	)

	return &Metrics{
		Registry:             registry,
		UpdatesAppliedTotal:  updatesAppliedTotal,
		UpdatesRejectedTotal: updatesRejectedTotal,
		CommitsTotal:         commitsTotal,
		PurgeRunsTotal:       purgeRunsTotal,
		PurgeRemovedTotal:    purgeRemovedTotal,
		BufferDirty:          bufferDirty,
		LastCommitAgeSeconds: lastCommitAgeSeconds,
		logger:               logger,
	}
}

// RecordApplied increments the applied-updates counter for classification.
func (m *Metrics) RecordApplied(classification string) {
	m.UpdatesAppliedTotal.WithLabelValues(classification).Inc()
}

// RecordRejected increments the rejected-updates counter for reason.
func (m *Metrics) RecordRejected(reason string) {
	m.UpdatesRejectedTotal.WithLabelValues(reason).Inc()
}
