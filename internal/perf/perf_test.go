// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package perf

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/models"
)

type fakeGauge struct {
	heapMB float64
	low    bool
}

func (p fakeGauge) HeapAllocMB() float64 { return p.heapMB }
func (p fakeGauge) IsLowMemory() bool    { return p.low }

type recordingHooks struct {
	backoffs  atomic.Int32
	trims     atomic.Int32
	clears    atomic.Int32
	fallbacks atomic.Int32
}

func (h *recordingHooks) BackOff()               { h.backoffs.Add(1) }
func (h *recordingHooks) TrimCache() int         { h.trims.Add(1); return 0 }
func (h *recordingHooks) ClearCache()            { h.clears.Add(1) }
func (h *recordingHooks) FallbackToCache(string) { h.fallbacks.Add(1) }

func testOptimizer(gauge MemoryGauge) (*Optimizer, *recordingHooks) {
	cfg := config.DefaultConfig().Perf
	cfg.UpdateBudget = 100 * time.Millisecond
	o := New(cfg, WithMemoryGauge(gauge))
	h := &recordingHooks{}
	o.SetBackoff(h)
	o.SetCacheTrimmer(h)
	o.SetFallback(h)
	return o, h
}

func TestMonitorSuccess(t *testing.T) {
	o, _ := testOptimizer(fakeGauge{})

	sample := o.Monitor(context.Background(), "refresh_2x3_1", time.Second, func(ctx context.Context) error {
		return nil
	})
	if sample.Failed() {
		t.Errorf("Error = %q, want none", sample.Error)
	}
	if sample.OperationName != "refresh_2x3_1" {
		t.Errorf("OperationName = %q", sample.OperationName)
	}
	if sample.DurationMs < 0 {
		t.Errorf("DurationMs = %d", sample.DurationMs)
	}
}

func TestMonitorTimeoutCancelsOp(t *testing.T) {
	o, _ := testOptimizer(fakeGauge{})
	cancelled := make(chan struct{})

	sample := o.Monitor(context.Background(), "slow", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	if sample.Error != "timeout" {
		t.Errorf("Error = %q, want timeout", sample.Error)
	}
	if sample.WithinBudget {
		t.Error("WithinBudget = true for a timed out op")
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("op context was not cancelled")
	}
}

func TestMonitorRecordsOpError(t *testing.T) {
	o, _ := testOptimizer(fakeGauge{})
	sample := o.Monitor(context.Background(), "broken", time.Second, func(ctx context.Context) error {
		return errors.New("surface gone")
	})
	if sample.Error != "surface gone" {
		t.Errorf("Error = %q", sample.Error)
	}
}

func TestMonitorSyncAbandonsAtDeadline(t *testing.T) {
	o, _ := testOptimizer(fakeGauge{})
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	sample := o.MonitorSync("stuck", 20*time.Millisecond, func() error {
		<-release
		return nil
	})
	if sample.Error != "timeout" {
		t.Errorf("Error = %q, want timeout", sample.Error)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("MonitorSync waited for the abandoned op")
	}
}

func TestBatchMonitorIsolatesFailures(t *testing.T) {
	o, _ := testOptimizer(fakeGauge{})

	samples := o.BatchMonitor(context.Background(), map[string]Op{
		"c_ok":    func(ctx context.Context) error { return nil },
		"a_panic": func(ctx context.Context) error { panic("boom") },
		"b_error": func(ctx context.Context) error { return errors.New("bad") },
	})

	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(samples))
	}
	names := []string{samples[0].OperationName, samples[1].OperationName, samples[2].OperationName}
	if names[0] != "a_panic" || names[1] != "b_error" || names[2] != "c_ok" {
		t.Errorf("order = %v, want sorted by name", names)
	}

	panicked := samples[0]
	if panicked.DurationMs != -1 || panicked.MemoryDeltaMB != -1 || !panicked.Failed() {
		t.Errorf("panicked sample = %+v, want -1/-1 with error", panicked)
	}
	if samples[1].Error != "bad" {
		t.Errorf("error sample = %+v", samples[1])
	}
	if samples[2].Failed() {
		t.Errorf("ok sample = %+v", samples[2])
	}
}

func TestOptimalInterval(t *testing.T) {
	tests := []struct {
		name  string
		gauge fakeGauge
		want  time.Duration
	}{
		{"normal", fakeGauge{heapMB: 5}, 30 * time.Minute},
		{"elevated heap", fakeGauge{heapMB: 25}, 45 * time.Minute},
		{"low memory", fakeGauge{heapMB: 5, low: true}, 60 * time.Minute},
		{"low memory wins", fakeGauge{heapMB: 25, low: true}, 60 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := testOptimizer(tt.gauge)
			if got := o.OptimalInterval(); got != tt.want {
				t.Errorf("OptimalInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		name      string
		gauge     fakeGauge
		preferred time.Duration
		want      time.Duration
	}{
		{"preferred shorter than base", fakeGauge{heapMB: 5}, 10 * time.Minute, 10 * time.Minute},
		{"preferred longer than base", fakeGauge{heapMB: 5}, 90 * time.Minute, 90 * time.Minute},
		{"no preference", fakeGauge{heapMB: 5}, 0, 30 * time.Minute},
		{"elevated heap stretches", fakeGauge{heapMB: 25}, 10 * time.Minute, 45 * time.Minute},
		{"low memory stretches", fakeGauge{heapMB: 5, low: true}, 10 * time.Minute, 60 * time.Minute},
		{"preference above low memory interval", fakeGauge{heapMB: 5, low: true}, 120 * time.Minute, 120 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := testOptimizer(tt.gauge)
			if got := o.IntervalFor(tt.preferred); got != tt.want {
				t.Errorf("IntervalFor(%v) = %v, want %v", tt.preferred, got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		sample    models.PerformanceSample
		want      []Action
		backoffs  int32
		trims     int32
		fallbacks int32
	}{
		{
			name:   "within budget",
			sample: models.PerformanceSample{OperationName: "op", DurationMs: 10, MemoryDeltaMB: 1, WithinBudget: true},
		},
		{
			name:     "over time",
			sample:   models.PerformanceSample{OperationName: "op", DurationMs: 150, MemoryDeltaMB: 1},
			want:     []Action{ActionBackOff},
			backoffs: 1,
		},
		{
			name:   "exactly at budget",
			sample: models.PerformanceSample{OperationName: "op", DurationMs: 100, MemoryDeltaMB: 1},
		},
		{
			name:   "over memory",
			sample: models.PerformanceSample{OperationName: "op", DurationMs: 10, MemoryDeltaMB: 25},
			want:   []Action{ActionTrimCache, ActionGCHint},
			trims:  1,
		},
		{
			name:      "timed out",
			sample:    models.PerformanceSample{OperationName: "op", DurationMs: 100, Error: "timeout"},
			want:      []Action{ActionBackOff, ActionFallbackToCache},
			backoffs:  1,
			fallbacks: 1,
		},
		{
			name:      "panicked batch entry",
			sample:    models.PerformanceSample{OperationName: "op", DurationMs: -1, MemoryDeltaMB: -1, Error: "panic: boom"},
			want:      []Action{ActionFallbackToCache},
			fallbacks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, h := testOptimizer(fakeGauge{})
			got := o.Apply(tt.sample)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Apply()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if h.backoffs.Load() != tt.backoffs || h.trims.Load() != tt.trims || h.fallbacks.Load() != tt.fallbacks {
				t.Errorf("hooks = backoff %d trim %d fallback %d", h.backoffs.Load(), h.trims.Load(), h.fallbacks.Load())
			}
		})
	}
}

func TestOptimizeMemory(t *testing.T) {
	o, h := testOptimizer(fakeGauge{heapMB: 10})
	if o.OptimizeMemory() {
		t.Error("OptimizeMemory() acted below threshold")
	}

	o, h = testOptimizer(fakeGauge{heapMB: 50})
	if !o.OptimizeMemory() {
		t.Error("OptimizeMemory() did not act above threshold")
	}
	if h.clears.Load() != 1 {
		t.Errorf("clears = %d, want 1", h.clears.Load())
	}
}

func TestRecentIsBounded(t *testing.T) {
	o, _ := testOptimizer(fakeGauge{})
	for i := 0; i < recentSamples+5; i++ {
		o.MonitorSync("op", time.Second, func() error { return nil })
	}
	if got := len(o.Recent()); got != recentSamples {
		t.Errorf("len(Recent()) = %d, want %d", got, recentSamples)
	}
}
