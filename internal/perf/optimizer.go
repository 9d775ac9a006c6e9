// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package perf

import (
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
)

// Action is a corrective action taken for a sample.
type Action string

const (
	ActionBackOff         Action = "back_off"
	ActionTrimCache       Action = "trim_cache"
	ActionGCHint          Action = "gc_hint"
	ActionFallbackToCache Action = "fallback_to_cache"
	ActionClearCache      Action = "clear_cache"
)

// IntervalBackoff lengthens the periodic refresh interval.
type IntervalBackoff interface {
	BackOff()
}

// CacheTrimmer releases cache memory.
type CacheTrimmer interface {
	// TrimCache drops everything outside the active refresh window.
	TrimCache() int
	// ClearCache drops every cached period.
	ClearCache()
}

// FallbackHook is told that an operation failed and its surface should be
// served from cache.
type FallbackHook interface {
	FallbackToCache(operation string)
}

// MemoryGauge reports process memory state.
type MemoryGauge interface {
	HeapAllocMB() float64
	IsLowMemory() bool
}

// RuntimeGauge reads the Go runtime. The process counts as low on memory
// when the heap exceeds LowMemoryRatio of the runtime soft memory limit. With
// no limit set it never reports low memory.
type RuntimeGauge struct {
	LowMemoryRatio float64
}

func (p RuntimeGauge) HeapAllocMB() float64 {
	return heapAllocMB()
}

func (p RuntimeGauge) IsLowMemory() bool {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 || p.LowMemoryRatio <= 0 {
		return false
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) > p.LowMemoryRatio*float64(limit)
}

// SetBackoff installs the interval backoff hook.
func (o *Optimizer) SetBackoff(h IntervalBackoff) {
	o.hooksMu.Lock()
	o.backoff = h
	o.hooksMu.Unlock()
}

// SetCacheTrimmer installs the cache trimming hook.
func (o *Optimizer) SetCacheTrimmer(h CacheTrimmer) {
	o.hooksMu.Lock()
	o.trimmer = h
	o.hooksMu.Unlock()
}

// SetFallback installs the fallback hook.
func (o *Optimizer) SetFallback(h FallbackHook) {
	o.hooksMu.Lock()
	o.fallback = h
	o.hooksMu.Unlock()
}

func (o *Optimizer) hooks() (IntervalBackoff, CacheTrimmer, FallbackHook) {
	o.hooksMu.RLock()
	defer o.hooksMu.RUnlock()
	return o.backoff, o.trimmer, o.fallback
}

// OptimalInterval returns the periodic refresh interval for the current
// memory state.
func (o *Optimizer) OptimalInterval() time.Duration {
	switch {
	case o.gauge.IsLowMemory():
		return o.cfg.LowMemoryInterval
	case o.gauge.HeapAllocMB() > o.cfg.MemoryThresholdMB:
		return o.cfg.ElevatedInterval
	default:
		return o.cfg.BaseInterval
	}
}

// IntervalFor returns preferred as the periodic interval, stretched to the
// elevated or low-memory interval under memory pressure. A non-positive
// preferred falls back to OptimalInterval.
func (o *Optimizer) IntervalFor(preferred time.Duration) time.Duration {
	optimal := o.OptimalInterval()
	if preferred <= 0 || optimal > o.cfg.BaseInterval && optimal > preferred {
		return optimal
	}
	return preferred
}

// Apply performs the corrective actions sample calls for and returns them.
// Samples from panicked batch entries (negative duration) only trigger the
// fallback.
func (o *Optimizer) Apply(sample models.PerformanceSample) []Action {
	backoff, trimmer, fallback := o.hooks()
	var actions []Action

	overTime := sample.DurationMs > o.cfg.UpdateBudget.Milliseconds() || sample.Error == ErrTimeout.Error()
	if sample.DurationMs >= 0 && overTime {
		if backoff != nil {
			backoff.BackOff()
		}
		actions = append(actions, ActionBackOff)
	}

	if sample.MemoryDeltaMB > o.cfg.MemoryThresholdMB {
		if trimmer != nil {
			trimmer.TrimCache()
		}
		runtime.GC()
		actions = append(actions, ActionTrimCache, ActionGCHint)
	}

	if sample.Failed() {
		if fallback != nil {
			fallback.FallbackToCache(sample.OperationName)
		}
		actions = append(actions, ActionFallbackToCache)
	}

	for _, a := range actions {
		metrics.RecordCorrectiveAction(string(a))
	}
	if len(actions) > 0 {
		o.logger.Info().
			Str("operation", sample.OperationName).
			Int64("duration_ms", sample.DurationMs).
			Float64("memory_delta_mb", sample.MemoryDeltaMB).
			Interface("actions", actions).
			Msg("Applied corrective actions")
	}
	return actions
}

// ApplyAll applies every sample in order.
func (o *Optimizer) ApplyAll(samples []models.PerformanceSample) []Action {
	var all []Action
	for _, s := range samples {
		all = append(all, o.Apply(s)...)
	}
	return all
}

// IsLowMemory reports whether the memory gauge sees pressure.
func (o *Optimizer) IsLowMemory() bool {
	return o.gauge.IsLowMemory()
}

// OptimizeMemory clears the cache and hints a GC when the heap exceeds the
// optimize threshold. It reports whether it acted.
func (o *Optimizer) OptimizeMemory() bool {
	heap := o.gauge.HeapAllocMB()
	if heap <= o.cfg.OptimizeThresholdMB {
		return false
	}
	_, trimmer, _ := o.hooks()
	if trimmer != nil {
		trimmer.ClearCache()
	}
	runtime.GC()
	metrics.RecordCorrectiveAction(string(ActionClearCache))
	o.logger.Warn().Float64("heap_mb", heap).Msg("Heap over threshold, cleared widget cache")
	return true
}
