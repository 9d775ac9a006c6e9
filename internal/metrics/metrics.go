// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the widget sync pipeline:
// - Cache store reads/writes
// - Data loader outcomes and live fetch latency
// - Performance optimizer samples and corrective actions
// - Scheduler job state transitions
// - Notification fan-out step results
// - Migration runs
// - Admin API requests

var (
	// Cache Store Metrics
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_cache_reads_total",
			Help: "Total cache reads by result (hit, miss, decode_error)",
		},
		[]string{"result"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_cache_writes_total",
			Help: "Total cache writes by result (ok, error)",
		},
		[]string{"result"},
	)

	CacheClears = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weekline_cache_clears_total",
			Help: "Total number of full cache clears",
		},
	)

	CacheGCDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weekline_cache_gc_duration_seconds",
			Help:    "BadgerDB value log GC duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Data Loader Metrics
	LoaderOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_loader_outcomes_total",
			Help: "Load results by path (fresh_cache, live, stale_cache, error) and error kind",
		},
		[]string{"path", "error_kind"},
	)

	LoaderFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weekline_loader_fetch_duration_seconds",
			Help:    "Live repository fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	LoaderSharedFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weekline_loader_shared_fetches_total",
			Help: "Loads that joined an in-flight fetch for the same period",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weekline_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Performance Optimizer Metrics
	PerfOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weekline_perf_operation_duration_seconds",
			Help:    "Duration of monitored widget operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation"},
	)

	PerfBudgetExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_perf_budget_exceeded_total",
			Help: "Monitored operations outside their time or memory budget",
		},
		[]string{"operation"},
	)

	PerfCorrectiveActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_perf_corrective_actions_total",
			Help: "Corrective actions applied (back_off, trim_cache, gc_hint, fallback_to_cache)",
		},
		[]string{"action"},
	)

	// Update Scheduler Metrics
	SchedulerJobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_scheduler_job_transitions_total",
			Help: "Job state transitions by job tag and target state",
		},
		[]string{"tag", "state"},
	)

	SchedulerTerminalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_scheduler_terminal_failures_total",
			Help: "Jobs that exhausted their attempts or failed permanently",
		},
		[]string{"tag"},
	)

	SchedulerPeriodicInterval = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weekline_scheduler_periodic_interval_seconds",
			Help: "Current periodic refresh interval in seconds",
		},
	)

	// Notification Fan-out Metrics
	FanoutSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_fanout_steps_total",
			Help: "Fan-out delivery steps by step and result",
		},
		[]string{"step", "result"},
	)

	// Migration Metrics
	MigrationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_migration_runs_total",
			Help: "Migration guard phases by phase and result",
		},
		[]string{"phase", "result"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekline_api_requests_total",
			Help: "Total admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weekline_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordCacheRead records a cache read result.
func RecordCacheRead(result string) {
	CacheReads.WithLabelValues(result).Inc()
}

// RecordCacheWrite records a cache write, labelling failures.
func RecordCacheWrite(err error) {
	if err != nil {
		CacheWrites.WithLabelValues("error").Inc()
		return
	}
	CacheWrites.WithLabelValues("ok").Inc()
}

// RecordLoad records which fallback path served a load.
func RecordLoad(path, errorKind string) {
	LoaderOutcomes.WithLabelValues(path, errorKind).Inc()
}

// RecordFetch records live fetch latency.
func RecordFetch(duration time.Duration) {
	LoaderFetchDuration.Observe(duration.Seconds())
}

// SetBreakerState publishes a circuit breaker state (0 closed, 1 half-open, 2 open).
func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordPerfSample records one monitored operation.
func RecordPerfSample(operation string, duration time.Duration, withinBudget bool) {
	PerfOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if !withinBudget {
		PerfBudgetExceeded.WithLabelValues(operation).Inc()
	}
}

// RecordCorrectiveAction records an applied corrective action.
func RecordCorrectiveAction(action string) {
	PerfCorrectiveActions.WithLabelValues(action).Inc()
}

// RecordJobTransition records a job entering state.
func RecordJobTransition(tag, state string) {
	SchedulerJobTransitions.WithLabelValues(tag, state).Inc()
}

// RecordTerminalFailure records a job that will not be retried.
func RecordTerminalFailure(tag string) {
	SchedulerTerminalFailures.WithLabelValues(tag).Inc()
}

// SetPeriodicInterval publishes the current periodic interval.
func SetPeriodicInterval(d time.Duration) {
	SchedulerPeriodicInterval.Set(d.Seconds())
}

// RecordFanoutStep records the result of one fan-out delivery step.
func RecordFanoutStep(step string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	FanoutSteps.WithLabelValues(step, result).Inc()
}

// RecordMigrationPhase records a migration guard phase result.
func RecordMigrationPhase(phase string, ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	MigrationRuns.WithLabelValues(phase, result).Inc()
}

// RecordAPIRequest records an admin API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
