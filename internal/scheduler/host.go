// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
)

// historySize bounds how many finished jobs stay queryable.
const historySize = 32

// ErrHostStopped is returned by Enqueue after Stop.
var ErrHostStopped = errors.New("job host stopped")

// HostConfig configures a LocalHost.
type HostConfig struct {
	// DefaultBackoff applies to specs with a zero Backoff.
	DefaultBackoff Backoff

	// DefaultMaxAttempts applies to specs with MaxAttempts <= 0.
	DefaultMaxAttempts int

	// ConstraintRecheck is how long a due job with unmet constraints waits
	// before checking again.
	ConstraintRecheck time.Duration
}

type job struct {
	id    string
	spec  JobSpec
	state JobState

	attempt   int
	runs      int
	nextRun   time.Time
	lastRun   time.Time
	lastError error

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
}

func (j *job) status() JobStatus {
	st := JobStatus{
		ID:        j.id,
		Identity:  j.spec.Identity,
		Tags:      append([]string(nil), j.spec.Tags...),
		Kind:      j.spec.Kind.String(),
		State:     j.state,
		Attempt:   j.attempt,
		Runs:      j.runs,
		LastRunAt: j.lastRun,
	}
	if j.state == StateScheduled {
		st.NextRunAt = j.nextRun
	}
	if j.lastError != nil {
		st.LastError = j.lastError.Error()
	}
	return st
}

func (j *job) metricTag() string {
	if len(j.spec.Tags) > 0 {
		return j.spec.Tags[0]
	}
	return j.spec.Identity
}

// LocalHost is an in-process background job host. Each job runs on its own
// goroutine with a cancellable context. Jobs run at least once unless
// cancelled, subject to their constraints.
type LocalHost struct {
	cfg        HostConfig
	conditions DeviceConditions
	onFailed   func(JobFailed)
	logger     zerolog.Logger

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.Mutex
	running bool
	stopped bool
	jobs    map[string]*job
	history []JobStatus
}

// NewLocalHost creates a host. conditions may be nil, in which case every
// constraint is met.
func NewLocalHost(cfg HostConfig, conditions DeviceConditions) *LocalHost {
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = 3
	}
	if cfg.DefaultBackoff.Base <= 0 {
		cfg.DefaultBackoff.Base = 30 * time.Second
	}
	if cfg.ConstraintRecheck <= 0 {
		cfg.ConstraintRecheck = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalHost{
		cfg:        cfg,
		conditions: conditions,
		logger:     logging.WithComponent("job-host"),
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]*job),
	}
}

// OnJobFailed registers the terminal failure callback.
func (h *LocalHost) OnJobFailed(fn func(JobFailed)) {
	h.mu.Lock()
	h.onFailed = fn
	h.mu.Unlock()
}

// Start launches every job enqueued so far and every job enqueued later.
func (h *LocalHost) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrHostStopped
	}
	if h.running {
		return nil
	}
	h.running = true

	// Stop the host when the caller's context ends.
	go func() {
		select {
		case <-ctx.Done():
			_ = h.Stop()
		case <-h.ctx.Done():
		}
	}()

	for _, j := range h.jobs {
		h.launch(j)
	}
	h.logger.Info().Int("jobs", len(h.jobs)).Msg("Job host started")
	return nil
}

// Stop cancels every job and waits for their goroutines.
func (h *LocalHost) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.running = false
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info().Msg("Job host stopped")
	return nil
}

// IsRunning reports whether the host is started.
func (h *LocalHost) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Enqueue adds a job. With the Keep policy an active job of the same identity
// is returned unchanged.
func (h *LocalHost) Enqueue(spec JobSpec) (JobStatus, error) {
	if spec.Identity == "" {
		return JobStatus{}, fmt.Errorf("job identity is required")
	}
	if spec.Run == nil {
		return JobStatus{}, fmt.Errorf("job %s has no body", spec.Identity)
	}
	if spec.Kind == Periodic && spec.interval() <= 0 {
		return JobStatus{}, fmt.Errorf("periodic job %s needs a positive interval", spec.Identity)
	}
	if spec.MaxAttempts <= 0 {
		spec.MaxAttempts = h.cfg.DefaultMaxAttempts
	}
	if spec.Backoff.Base <= 0 {
		spec.Backoff = h.cfg.DefaultBackoff
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return JobStatus{}, ErrHostStopped
	}

	if existing, ok := h.jobs[spec.Identity]; ok && existing.state.Active() {
		if spec.Policy == Keep {
			return existing.status(), nil
		}
		h.cancelLocked(existing)
	}

	ctx, cancel := context.WithCancel(h.ctx)
	j := &job{
		id:      uuid.New().String(),
		spec:    spec,
		state:   StateScheduled,
		nextRun: time.Now().Add(spec.InitialDelay),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
	}
	h.jobs[spec.Identity] = j
	h.transition(j, StateScheduled)

	if h.running {
		h.launch(j)
	}

	h.logger.Debug().
		Str("job_id", j.id).
		Str("identity", spec.Identity).
		Str("kind", spec.Kind.String()).
		Time("next_run", j.nextRun).
		Msg("Job enqueued")
	return j.status(), nil
}

// CancelByIdentity cancels the active job with identity, including a running
// one. It reports whether a job was cancelled.
func (h *LocalHost) CancelByIdentity(identity string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[identity]
	if !ok || !j.state.Active() {
		return false
	}
	h.cancelLocked(j)
	return true
}

// CancelByTag cancels every active job carrying tag and returns the count.
func (h *LocalHost) CancelByTag(tag string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, j := range h.jobs {
		if j.state.Active() && j.spec.HasTag(tag) {
			h.cancelLocked(j)
			n++
		}
	}
	return n
}

func (h *LocalHost) cancelLocked(j *job) {
	j.cancel()
	h.finishLocked(j, StateCancelled)
}

// Status returns the status of the job with identity, active or recently
// finished.
func (h *LocalHost) Status(identity string) (JobStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if j, ok := h.jobs[identity]; ok {
		return j.status(), true
	}
	for i := len(h.history) - 1; i >= 0; i-- {
		if h.history[i].Identity == identity {
			return h.history[i], true
		}
	}
	return JobStatus{}, false
}

// Jobs returns the active jobs ordered by next run time.
func (h *LocalHost) Jobs() []JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]JobStatus, 0, len(h.jobs))
	for _, j := range h.jobs {
		out = append(out, j.status())
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].NextRunAt.Equal(out[k].NextRunAt) {
			return out[i].Identity < out[k].Identity
		}
		return out[i].NextRunAt.Before(out[k].NextRunAt)
	})
	return out
}

// History returns recently finished jobs, oldest first.
func (h *LocalHost) History() []JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]JobStatus(nil), h.history...)
}

// RunNow makes a scheduled job due immediately.
func (h *LocalHost) RunNow(identity string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[identity]
	if !ok || j.state != StateScheduled {
		return false
	}
	j.nextRun = time.Now()
	select {
	case j.wake <- struct{}{}:
	default:
	}
	return true
}

func (h *LocalHost) launch(j *job) {
	h.wg.Add(1)
	go h.loop(j)
}

func (h *LocalHost) loop(j *job) {
	defer h.wg.Done()

	for {
		h.mu.Lock()
		delay := time.Until(j.nextRun)
		h.mu.Unlock()

		if !h.wait(j, delay) {
			return
		}

		if !h.constraintsMet(j.spec.Constraints) {
			h.mu.Lock()
			j.nextRun = time.Now().Add(h.cfg.ConstraintRecheck)
			h.mu.Unlock()
			h.logger.Debug().Str("identity", j.spec.Identity).Msg("Job constraints unmet, deferring")
			continue
		}

		h.mu.Lock()
		if !j.state.Active() {
			h.mu.Unlock()
			return
		}
		j.attempt++
		j.runs++
		j.lastRun = time.Now()
		h.transition(j, StateRunning)
		h.mu.Unlock()

		err := h.execute(j)

		if !h.afterRun(j, err) {
			return
		}
	}
}

// wait sleeps for delay. It returns false when the job was cancelled.
func (h *LocalHost) wait(j *job, delay time.Duration) bool {
	if delay <= 0 {
		return j.ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-j.ctx.Done():
		return false
	case <-j.wake:
		return j.ctx.Err() == nil
	case <-timer.C:
		return true
	}
}

func (h *LocalHost) constraintsMet(c Constraints) bool {
	if h.conditions == nil {
		return true
	}
	if c.RequireNetwork && !h.conditions.IsNetworkAvailable() {
		return false
	}
	if c.RequireBatteryOK && !h.conditions.IsBatteryOK() {
		return false
	}
	return true
}

func (h *LocalHost) execute(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.spec.Run(logging.ContextWithNewCorrelationID(j.ctx))
}

// afterRun records a run result and reports whether the job loop continues.
func (h *LocalHost) afterRun(j *job, err error) bool {
	// IntervalFunc may take caller locks, so it runs before h.mu.
	var interval time.Duration
	if j.spec.Kind == Periodic {
		interval = j.spec.interval()
	}

	h.mu.Lock()

	// Cancelled while running: the cancellation already finished the job.
	if j.state == StateCancelled {
		h.mu.Unlock()
		return false
	}

	j.lastError = err
	log := h.logger.With().Str("job_id", j.id).Str("identity", j.spec.Identity).Int("attempt", j.attempt).Logger()

	if err == nil {
		if j.spec.Kind == OneShot {
			h.finishLocked(j, StateSucceeded)
			h.mu.Unlock()
			log.Debug().Msg("Job succeeded")
			return false
		}
		h.transition(j, StateSucceeded)
		j.attempt = 0
		h.scheduleNextPeriodLocked(j, interval)
		h.mu.Unlock()
		return true
	}

	permanent := IsPermanent(err)
	if !permanent && j.attempt < j.spec.MaxAttempts {
		delay := j.spec.Backoff.Delay(j.attempt)
		j.nextRun = time.Now().Add(delay)
		h.transition(j, StateScheduled)
		h.mu.Unlock()
		log.Warn().Err(err).Dur("retry_in", delay).Msg("Job failed, retrying")
		return true
	}

	event := JobFailed{
		ID:        j.id,
		Identity:  j.spec.Identity,
		Tags:      append([]string(nil), j.spec.Tags...),
		Attempts:  j.attempt,
		Permanent: permanent,
		Err:       err,
	}
	metrics.RecordTerminalFailure(j.metricTag())
	onFailed := h.onFailed

	cont := false
	if j.spec.Kind == OneShot {
		h.finishLocked(j, StateFailed)
	} else {
		// A failed period does not end a periodic job; the next period
		// starts with a fresh attempt budget.
		h.transition(j, StateFailed)
		j.attempt = 0
		h.scheduleNextPeriodLocked(j, interval)
		cont = true
	}
	h.mu.Unlock()

	log.Error().Err(err).Bool("permanent", permanent).Msg("Job failed terminally")
	if onFailed != nil {
		onFailed(event)
	}
	return cont
}

func (h *LocalHost) scheduleNextPeriodLocked(j *job, interval time.Duration) {
	next := interval
	if flex := j.spec.Flex; flex > 0 && flex < interval {
		next = interval - rand.N(flex)
	}
	j.nextRun = time.Now().Add(next)
	h.transition(j, StateScheduled)
}

// finishLocked moves j to a final state and into history.
func (h *LocalHost) finishLocked(j *job, state JobState) {
	h.transition(j, state)
	if cur, ok := h.jobs[j.spec.Identity]; ok && cur == j {
		delete(h.jobs, j.spec.Identity)
	}
	h.history = append(h.history, j.status())
	if len(h.history) > historySize {
		h.history = h.history[len(h.history)-historySize:]
	}
	j.cancel()
}

func (h *LocalHost) transition(j *job, state JobState) {
	j.state = state
	metrics.RecordJobTransition(j.metricTag(), string(state))
}
