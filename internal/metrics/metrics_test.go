// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCacheWrite(t *testing.T) {
	okBefore := testutil.ToFloat64(CacheWrites.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(CacheWrites.WithLabelValues("error"))

	RecordCacheWrite(nil)
	RecordCacheWrite(errors.New("txn too big"))

	if got := testutil.ToFloat64(CacheWrites.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Errorf("ok writes delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(CacheWrites.WithLabelValues("error")) - errBefore; got != 1 {
		t.Errorf("error writes delta = %v, want 1", got)
	}
}

func TestRecordLoad(t *testing.T) {
	tests := []struct {
		path string
		kind string
	}{
		{"fresh_cache", ""},
		{"live", ""},
		{"stale_cache", "TIMEOUT"},
		{"error", "AUTHENTICATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			before := testutil.ToFloat64(LoaderOutcomes.WithLabelValues(tt.path, tt.kind))
			RecordLoad(tt.path, tt.kind)
			after := testutil.ToFloat64(LoaderOutcomes.WithLabelValues(tt.path, tt.kind))
			if after-before != 1 {
				t.Errorf("expected counter to increase by 1, got %v", after-before)
			}
		})
	}
}

func TestRecordPerfSample(t *testing.T) {
	before := testutil.ToFloat64(PerfBudgetExceeded.WithLabelValues("refresh_2x3_7"))

	RecordPerfSample("refresh_2x3_7", 20*time.Millisecond, true)
	RecordPerfSample("refresh_2x3_7", 1500*time.Millisecond, false)

	if got := testutil.ToFloat64(PerfBudgetExceeded.WithLabelValues("refresh_2x3_7")) - before; got != 1 {
		t.Errorf("budget exceeded delta = %v, want 1", got)
	}
}

func TestRecordFanoutStep(t *testing.T) {
	okBefore := testutil.ToFloat64(FanoutSteps.WithLabelValues("broadcast", "ok"))
	errBefore := testutil.ToFloat64(FanoutSteps.WithLabelValues("direct_refresh", "error"))

	RecordFanoutStep("broadcast", nil)
	RecordFanoutStep("direct_refresh", errors.New("surface gone"))

	if testutil.ToFloat64(FanoutSteps.WithLabelValues("broadcast", "ok"))-okBefore != 1 {
		t.Error("expected broadcast ok to increment")
	}
	if testutil.ToFloat64(FanoutSteps.WithLabelValues("direct_refresh", "error"))-errBefore != 1 {
		t.Error("expected direct_refresh error to increment")
	}
}

func TestGauges(t *testing.T) {
	SetPeriodicInterval(45 * time.Minute)
	if got := testutil.ToFloat64(SchedulerPeriodicInterval); got != 2700 {
		t.Errorf("periodic interval = %v, want 2700", got)
	}

	SetBreakerState("goal-repository", 2)
	if got := testutil.ToFloat64(BreakerState.WithLabelValues("goal-repository")); got != 2 {
		t.Errorf("breaker state = %v, want 2", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/events", "202"))
	RecordAPIRequest("POST", "/api/v1/events", 202, 3*time.Millisecond)
	if testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/events", "202"))-before != 1 {
		t.Error("expected API request counter to increment")
	}
}
