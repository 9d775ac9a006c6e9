// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/loader"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/perf"
)

func newTestScheduler(t *testing.T, mutate func(*config.SchedulerConfig)) *Scheduler {
	t.Helper()
	cfg := config.DefaultConfig().Scheduler
	if mutate != nil {
		mutate(&cfg)
	}
	host := NewLocalHost(HostConfig{}, nil)
	t.Cleanup(func() { _ = host.Stop() })
	return New(cfg, host, func() time.Duration { return 30 * time.Minute }, func(context.Context) error { return nil })
}

func TestSchedulePeriodicKeepsOneJob(t *testing.T) {
	s := newTestScheduler(t, nil)

	first, err := s.SchedulePeriodic()
	if err != nil {
		t.Fatalf("SchedulePeriodic() error = %v", err)
	}
	second, err := s.SchedulePeriodic()
	if err != nil {
		t.Fatalf("SchedulePeriodic() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second call created job %s, want %s", second.ID, first.ID)
	}
	if n := len(s.Host().Jobs()); n != 1 {
		t.Errorf("active jobs = %d, want 1", n)
	}
	if first.Identity != PeriodicIdentity || first.Tags[0] != TagPeriodic {
		t.Errorf("job = %+v", first)
	}
}

func TestPeriodicFlex(t *testing.T) {
	s := newTestScheduler(t, nil)
	if got := s.flex(30 * time.Minute); got != 15*time.Minute {
		t.Errorf("flex(30m) = %v, want 15m", got)
	}
	if got := s.flex(60 * time.Minute); got != 15*time.Minute {
		t.Errorf("flex(60m) = %v, want capped 15m", got)
	}
	if got := s.flex(10 * time.Minute); got != 5*time.Minute {
		t.Errorf("flex(10m) = %v, want 5m", got)
	}
}

func TestBackOffMultiplier(t *testing.T) {
	s := newTestScheduler(t, nil)

	if got := s.PeriodicInterval(); got != 30*time.Minute {
		t.Fatalf("PeriodicInterval() = %v, want 30m", got)
	}
	for i := 0; i < 5; i++ {
		s.BackOff()
	}
	if s.Multiplier() != 8 {
		t.Errorf("Multiplier() = %d, want capped 8", s.Multiplier())
	}
	if got := s.PeriodicInterval(); got != 4*time.Hour {
		t.Errorf("PeriodicInterval() = %v, want 4h", got)
	}

	s.ResetBackoff()
	if s.Multiplier() != 1 {
		t.Errorf("Multiplier() after reset = %d", s.Multiplier())
	}
}

func TestScheduleImmediateCoalescesWhenThrottled(t *testing.T) {
	s := newTestScheduler(t, func(c *config.SchedulerConfig) {
		c.ImmediateRate = 0.001
		c.ImmediateBurst = 1
	})

	first, err := s.ScheduleImmediate()
	if err != nil {
		t.Fatalf("ScheduleImmediate() error = %v", err)
	}
	second, err := s.ScheduleImmediate()
	if err != nil {
		t.Fatalf("ScheduleImmediate() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("throttled request created %s, want coalesced into %s", second.ID, first.ID)
	}
	if first.Tags[0] != TagImmediate {
		t.Errorf("tags = %v", first.Tags)
	}
}

func TestScheduleImmediateUnthrottledIsUnique(t *testing.T) {
	s := newTestScheduler(t, func(c *config.SchedulerConfig) {
		c.ImmediateRate = 0
	})
	a, _ := s.ScheduleImmediate()
	b, _ := s.ScheduleImmediate()
	if a.Identity == b.Identity {
		t.Error("immediate jobs share an identity")
	}
}

func TestCancelAll(t *testing.T) {
	s := newTestScheduler(t, func(c *config.SchedulerConfig) { c.ImmediateRate = 0 })

	if _, err := s.SchedulePeriodic(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ScheduleImmediate(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ForceNow(); err != nil {
		t.Fatal(err)
	}

	if n := s.CancelAll(); n != 3 {
		t.Errorf("CancelAll() = %d, want 3", n)
	}
	if n := len(s.Host().Jobs()); n != 0 {
		t.Errorf("active jobs after CancelAll = %d", n)
	}
}

func TestForceNowRuns(t *testing.T) {
	var runs atomic.Int32
	host := NewLocalHost(HostConfig{}, nil)
	s := New(config.DefaultConfig().Scheduler, host, func() time.Duration { return time.Hour }, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if _, err := s.ForceNow(); err != nil {
		t.Fatalf("ForceNow() error = %v", err)
	}
	waitFor(t, "forced run", func() bool { return runs.Load() == 1 })
}

type fakeWindow struct {
	outcomes []models.RefreshOutcome
	force    bool
}

func (f *fakeWindow) LoadWindow(ctx context.Context, now time.Time, weeksBack int, force bool) []loader.PeriodOutcome {
	f.force = force
	out := make([]loader.PeriodOutcome, len(f.outcomes))
	for i, o := range f.outcomes {
		out[i] = loader.PeriodOutcome{Period: models.PeriodForOffset(now, -i), Outcome: o}
	}
	return out
}

type fakeSurfaces struct{ calls atomic.Int32 }

func (f *fakeSurfaces) RefreshAll(context.Context) []models.PerformanceSample {
	f.calls.Add(1)
	return []models.PerformanceSample{{OperationName: "refresh_2x3_1", WithinBudget: true}}
}

type fakeApplier struct{ actions []perf.Action }

func (f fakeApplier) ApplyAll([]models.PerformanceSample) []perf.Action { return f.actions }

func TestRefreshJob(t *testing.T) {
	ok := models.Success(nil, false)
	auth := models.FailureKind(models.ErrorAuthentication)
	timeout := models.FailureKind(models.ErrorTimeout)
	stale := models.Success([]models.GoalSnapshot{{ID: "old"}}, true)

	tests := []struct {
		name          string
		outcomes      []models.RefreshOutcome
		actions       []perf.Action
		wantErr       error
		wantPermanent bool
		wantHealthy   bool
		wantLoaded    bool
	}{
		{name: "all loaded", outcomes: []models.RefreshOutcome{ok, ok}, wantHealthy: true, wantLoaded: true},
		{name: "all loaded but slow", outcomes: []models.RefreshOutcome{ok, ok}, actions: []perf.Action{perf.ActionBackOff}, wantLoaded: true},
		{name: "partial failure", outcomes: []models.RefreshOutcome{ok, timeout}, wantLoaded: true},
		{name: "stale cache only", outcomes: []models.RefreshOutcome{stale, auth}},
		{name: "all failed", outcomes: []models.RefreshOutcome{timeout, auth}, wantErr: ErrAllPeriodsFailed},
		{name: "all signed out", outcomes: []models.RefreshOutcome{auth, auth}, wantErr: ErrSignedOut, wantPermanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := &fakeWindow{outcomes: tt.outcomes}
			surfaces := &fakeSurfaces{}
			healthy, loaded := false, false
			job := &RefreshJob{
				Loader:    window,
				Surfaces:  surfaces,
				Optimizer: fakeApplier{actions: tt.actions},
				WeeksBack: 4,
				OnLoaded: func(context.Context) {
					if surfaces.calls.Load() != 0 {
						t.Error("OnLoaded ran after the redraw")
					}
					loaded = true
				},
				OnHealthy: func() { healthy = true },
			}

			err := job.Run(context.Background())
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if IsPermanent(err) != tt.wantPermanent {
				t.Errorf("IsPermanent = %v, want %v", IsPermanent(err), tt.wantPermanent)
			}
			if healthy != tt.wantHealthy {
				t.Errorf("healthy = %v, want %v", healthy, tt.wantHealthy)
			}
			if loaded != tt.wantLoaded {
				t.Errorf("loaded = %v, want %v", loaded, tt.wantLoaded)
			}
			if !window.force {
				t.Error("refresh did not force live loads")
			}
			if surfaces.calls.Load() != 1 {
				t.Error("surfaces were not refreshed")
			}
		})
	}
}

func TestPeriodicRescheduleDuringImmediateRequests(t *testing.T) {
	var runs atomic.Int32
	host := NewLocalHost(HostConfig{}, nil)
	s := New(config.DefaultConfig().Scheduler, host, func() time.Duration { return 100 * time.Microsecond }, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if _, err := s.SchedulePeriodic(); err != nil {
		t.Fatalf("SchedulePeriodic() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if _, err := s.ScheduleImmediate(); err != nil {
				t.Errorf("ScheduleImmediate() error = %v", err)
				return
			}
			s.BackOff()
			s.ResetBackoff()
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ScheduleImmediate blocked while the periodic job rescheduled")
	}

	waitFor(t, "periodic runs", func() bool { return runs.Load() > 10 })

	summary := make(chan Summary, 1)
	go func() { summary <- s.Summary() }()
	select {
	case got := <-summary:
		if !got.Running {
			t.Error("summary reports host not running")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Summary blocked")
	}
}

type fakeMemory struct {
	low       bool
	optimized atomic.Int32
}

func (f *fakeMemory) IsLowMemory() bool { return f.low }

func (f *fakeMemory) OptimizeMemory() bool {
	f.optimized.Add(1)
	return f.low
}

func TestRefreshJobMemoryPressure(t *testing.T) {
	tests := []struct {
		name      string
		low       bool
		wantForce bool
	}{
		{name: "normal memory", low: false, wantForce: true},
		{name: "low memory", low: true, wantForce: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := &fakeWindow{outcomes: []models.RefreshOutcome{models.Success(nil, false)}}
			mem := &fakeMemory{low: tt.low}
			job := &RefreshJob{
				Loader:    window,
				Surfaces:  &fakeSurfaces{},
				Optimizer: fakeApplier{},
				Memory:    mem,
			}

			if err := job.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if window.force != tt.wantForce {
				t.Errorf("force = %v, want %v", window.force, tt.wantForce)
			}
			if mem.optimized.Load() != 1 {
				t.Errorf("OptimizeMemory calls = %d, want 1", mem.optimized.Load())
			}
		})
	}
}
