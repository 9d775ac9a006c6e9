// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package perf

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
)

// ErrTimeout is recorded when an operation outlives its budget.
var ErrTimeout = errors.New("timeout")

// recentSamples is the size of the sample ring kept for health reporting.
const recentSamples = 32

// Op is a monitored operation. It must honour ctx cancellation.
type Op func(ctx context.Context) error

// Optimizer measures widget operations against their time and memory
// budgets and applies corrective actions through its hooks.
type Optimizer struct {
	cfg    config.PerfConfig
	gauge  MemoryGauge
	logger zerolog.Logger

	hooksMu  sync.RWMutex
	backoff  IntervalBackoff
	trimmer  CacheTrimmer
	fallback FallbackHook

	recentMu sync.Mutex
	recent   []models.PerformanceSample
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMemoryGauge replaces the runtime memory gauge.
func WithMemoryGauge(p MemoryGauge) Option {
	return func(o *Optimizer) { o.gauge = p }
}

// New creates an Optimizer.
func New(cfg config.PerfConfig, opts ...Option) *Optimizer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.UpdateBudget <= 0 {
		cfg.UpdateBudget = time.Second
	}
	o := &Optimizer{
		cfg:    cfg,
		gauge:  RuntimeGauge{LowMemoryRatio: cfg.LowMemoryRatio},
		logger: logging.WithComponent("perf"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Budget returns the per-update time budget.
func (o *Optimizer) Budget() time.Duration {
	return o.cfg.UpdateBudget
}

// Monitor runs op under a budget deadline and returns its sample. When the
// deadline passes first, op's context is cancelled and the sample records a
// timeout without waiting for op to return.
func (o *Optimizer) Monitor(ctx context.Context, name string, budget time.Duration, op Op) models.PerformanceSample {
	sample, _ := o.monitor(ctx, name, budget, op)
	return sample
}

func (o *Optimizer) monitor(ctx context.Context, name string, budget time.Duration, op Op) (models.PerformanceSample, bool) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	return o.measure(name, budget, func(done chan<- error) {
		done <- op(ctx)
	}, ctx.Done())
}

// MonitorSync is Monitor for operations that cannot observe a context. At the
// deadline the operation is abandoned on its goroutine.
func (o *Optimizer) MonitorSync(name string, budget time.Duration, op func() error) models.PerformanceSample {
	expired := make(chan struct{})
	timer := time.AfterFunc(budget, func() { close(expired) })
	defer timer.Stop()

	sample, _ := o.measure(name, budget, func(done chan<- error) {
		done <- op()
	}, expired)
	return sample
}

// measure runs run on its own goroutine and reports whether it panicked.
func (o *Optimizer) measure(name string, budget time.Duration, run func(chan<- error), deadline <-chan struct{}) (models.PerformanceSample, bool) {
	before := heapAllocMB()
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{value: r}
			}
		}()
		run(done)
	}()

	var opErr error
	select {
	case opErr = <-done:
	case <-deadline:
		opErr = ErrTimeout
	}
	var perr *panicError
	panicked := errors.As(opErr, &perr)
	if errors.Is(opErr, context.DeadlineExceeded) {
		opErr = ErrTimeout
	}

	duration := time.Since(start)
	delta := heapAllocMB() - before

	sample := models.PerformanceSample{
		OperationName: name,
		DurationMs:    duration.Milliseconds(),
		MemoryDeltaMB: delta,
		WithinBudget:  duration < budget && delta < o.cfg.MemoryThresholdMB,
	}
	if opErr != nil {
		sample.Error = opErr.Error()
	}

	o.record(sample, duration)
	return sample, panicked
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (o *Optimizer) record(sample models.PerformanceSample, duration time.Duration) {
	metrics.RecordPerfSample(sample.OperationName, duration, sample.WithinBudget)

	if o.cfg.SlowLogThreshold > 0 && duration > o.cfg.SlowLogThreshold {
		o.logger.Warn().
			Str("operation", sample.OperationName).
			Dur("duration", duration).
			Float64("memory_delta_mb", sample.MemoryDeltaMB).
			Msg("Slow widget operation")
	}

	o.recentMu.Lock()
	o.recent = append(o.recent, sample)
	if len(o.recent) > recentSamples {
		o.recent = o.recent[len(o.recent)-recentSamples:]
	}
	o.recentMu.Unlock()
}

// Recent returns the most recent samples, oldest first.
func (o *Optimizer) Recent() []models.PerformanceSample {
	o.recentMu.Lock()
	defer o.recentMu.Unlock()
	out := make([]models.PerformanceSample, len(o.recent))
	copy(out, o.recent)
	return out
}

// BatchMonitor runs every op with bounded concurrency, each under the update
// budget. A panicking op never affects the others; its sample records
// DurationMs and MemoryDeltaMB as -1. Samples are sorted by name.
func (o *Optimizer) BatchMonitor(ctx context.Context, ops map[string]Op) []models.PerformanceSample {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		samples = make([]models.PerformanceSample, 0, len(ops))
	)
	g.SetLimit(o.cfg.Workers)

	for name, op := range ops {
		g.Go(func() error {
			sample := o.guarded(ctx, name, op)
			mu.Lock()
			samples = append(samples, sample)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].OperationName < samples[j].OperationName
	})
	return samples
}

func (o *Optimizer) guarded(ctx context.Context, name string, op Op) models.PerformanceSample {
	sample, panicked := o.monitor(ctx, name, o.cfg.UpdateBudget, op)
	if panicked {
		o.logger.Error().Str("operation", name).Str("error", sample.Error).Msg("Batch operation panicked")
		sample.DurationMs = -1
		sample.MemoryDeltaMB = -1
		sample.WithinBudget = false
	}
	return sample
}

func heapAllocMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / (1 << 20)
}
