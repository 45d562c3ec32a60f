package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncResults - результаты синхронизации привязок по бирже и статусу (ok/error)
	SyncResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_sync_results_total",
			Help: "Per-exchange account sync results",
		},
		[]string{"exchange", "status"},
	)

	// SyncDuration - длительность синхронизации одного пользователя
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copytrade_user_sync_duration_seconds",
			Help:    "Duration of a full sync of one user",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// SyncPanics - паники, перехваченные при синхронизации
	SyncPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copytrade_sync_panics_total",
			Help: "Recovered panics during user sync",
		},
	)

	// DispatchOutcomes - исходы исполнения сигналов
	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_dispatch_outcomes_total",
			Help: "Trade signal outcomes by exchange and status",
		},
		[]string{"exchange", "status"},
	)

	// AuditDropped - события аудита, отброшенные из-за переполнения очереди
	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copytrade_audit_dropped_total",
			Help: "Audit events dropped because the queue was full",
		},
	)
)
