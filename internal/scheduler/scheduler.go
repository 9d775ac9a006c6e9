// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
)

// Job identities and tags.
const (
	PeriodicIdentity = "weekly_goal_widget_update"

	TagPeriodic  = "widget_update"
	TagImmediate = "widget_immediate_update"
	TagForce     = "widget_force_update"
)

// Scheduler owns the widget refresh jobs on a LocalHost.
type Scheduler struct {
	host     *LocalHost
	cfg      config.SchedulerConfig
	interval func() time.Duration
	body     JobFunc
	limiter  *rate.Limiter
	logger   zerolog.Logger

	mu               sync.Mutex
	multiplier       int
	pendingImmediate string
}

// New creates a Scheduler. interval returns the base periodic interval and is
// consulted at every reschedule; body is the refresh job.
func New(cfg config.SchedulerConfig, host *LocalHost, interval func() time.Duration, body JobFunc) *Scheduler {
	if cfg.MaxIntervalMultiplier <= 0 {
		cfg.MaxIntervalMultiplier = 8
	}
	if cfg.FlexMax <= 0 {
		cfg.FlexMax = 15 * time.Minute
	}

	limit := rate.Inf
	if cfg.ImmediateRate > 0 {
		limit = rate.Limit(cfg.ImmediateRate)
	}
	burst := cfg.ImmediateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Scheduler{
		host:       host,
		cfg:        cfg,
		interval:   interval,
		body:       body,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logging.WithComponent("scheduler"),
		multiplier: 1,
	}
}

// Host returns the underlying job host.
func (s *Scheduler) Host() *LocalHost {
	return s.host
}

// Start starts the job host.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.host.Start(ctx)
}

// Stop stops the job host, cancelling every job.
func (s *Scheduler) Stop() error {
	return s.host.Stop()
}

func (s *Scheduler) backoff() Backoff {
	return Backoff{Policy: Exponential, Base: s.cfg.BackoffBase, Max: s.cfg.BackoffMax}
}

// PeriodicInterval is the base interval scaled by the back-off multiplier.
func (s *Scheduler) PeriodicInterval() time.Duration {
	s.mu.Lock()
	m := s.multiplier
	s.mu.Unlock()
	d := s.interval() * time.Duration(m)
	metrics.SetPeriodicInterval(d)
	return d
}

func (s *Scheduler) flex(interval time.Duration) time.Duration {
	return min(interval/2, s.cfg.FlexMax)
}

// SchedulePeriodic schedules the recurring refresh. An existing periodic job
// is kept, so repeated calls leave exactly one active job.
func (s *Scheduler) SchedulePeriodic() (JobStatus, error) {
	interval := s.PeriodicInterval()
	st, err := s.host.Enqueue(JobSpec{
		Identity:     PeriodicIdentity,
		Tags:         []string{TagPeriodic},
		Kind:         Periodic,
		IntervalFunc: s.PeriodicInterval,
		Flex:         s.flex(interval),
		InitialDelay: interval,
		Constraints:  Constraints{RequireNetwork: true, RequireBatteryOK: true},
		Backoff:      s.backoff(),
		MaxAttempts:  s.cfg.MaxAttempts,
		Policy:       Keep,
		Run:          s.body,
	})
	if err != nil {
		return st, fmt.Errorf("schedule periodic refresh: %w", err)
	}
	s.logger.Info().Dur("interval", interval).Str("job_id", st.ID).Msg("Periodic widget refresh scheduled")
	return st, nil
}

// ScheduleImmediate enqueues a one-shot refresh that ignores connectivity.
// Requests beyond the rate limit join the pending immediate job.
// s.mu is never held across host calls.
func (s *Scheduler) ScheduleImmediate() (JobStatus, error) {
	res := s.limiter.Reserve()
	delay := res.Delay()

	s.mu.Lock()
	pending := s.pendingImmediate
	s.mu.Unlock()

	if delay > 0 && pending != "" {
		if st, ok := s.host.Status(pending); ok && st.State == StateScheduled {
			res.Cancel()
			s.logger.Debug().Str("job_id", st.ID).Msg("Immediate refresh coalesced")
			return st, nil
		}
	}

	identity := TagImmediate + "_" + uuid.New().String()
	st, err := s.host.Enqueue(JobSpec{
		Identity:     identity,
		Tags:         []string{TagImmediate},
		Kind:         OneShot,
		InitialDelay: delay,
		Backoff:      s.backoff(),
		MaxAttempts:  s.cfg.MaxAttempts,
		Policy:       Keep,
		Run:          s.body,
	})
	if err != nil {
		res.Cancel()
		return st, fmt.Errorf("schedule immediate refresh: %w", err)
	}

	s.mu.Lock()
	s.pendingImmediate = identity
	s.mu.Unlock()
	return st, nil
}

// ForceNow enqueues a one-shot refresh that runs at once.
func (s *Scheduler) ForceNow() (JobStatus, error) {
	st, err := s.host.Enqueue(JobSpec{
		Identity:    TagForce + "_" + uuid.New().String(),
		Tags:        []string{TagForce},
		Kind:        OneShot,
		Backoff:     s.backoff(),
		MaxAttempts: s.cfg.MaxAttempts,
		Policy:      Keep,
		Run:         s.body,
	})
	if err != nil {
		return st, fmt.Errorf("force refresh: %w", err)
	}
	s.logger.Info().Str("job_id", st.ID).Msg("Forced widget refresh")
	return st, nil
}

// CancelAll cancels the periodic job and every refresh job, running or not.
func (s *Scheduler) CancelAll() int {
	n := 0
	if s.host.CancelByIdentity(PeriodicIdentity) {
		n++
	}
	for _, tag := range []string{TagPeriodic, TagImmediate, TagForce} {
		n += s.host.CancelByTag(tag)
	}

	s.mu.Lock()
	s.pendingImmediate = ""
	s.mu.Unlock()

	s.logger.Info().Int("cancelled", n).Msg("Cancelled widget refresh jobs")
	return n
}

// BackOff doubles the periodic interval multiplier, up to the configured cap.
func (s *Scheduler) BackOff() {
	s.mu.Lock()
	if s.multiplier < s.cfg.MaxIntervalMultiplier {
		s.multiplier = min(s.multiplier*2, s.cfg.MaxIntervalMultiplier)
	}
	m := s.multiplier
	s.mu.Unlock()
	s.logger.Info().Int("multiplier", m).Msg("Periodic refresh backed off")
}

// ResetBackoff restores the base periodic interval.
func (s *Scheduler) ResetBackoff() {
	s.mu.Lock()
	changed := s.multiplier != 1
	s.multiplier = 1
	s.mu.Unlock()
	if changed {
		s.logger.Info().Msg("Periodic refresh back-off reset")
	}
}

// Multiplier returns the current back-off multiplier.
func (s *Scheduler) Multiplier() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.multiplier
}

// Summary describes the scheduler for health reporting.
type Summary struct {
	Running          bool        `json:"running"`
	Multiplier       int         `json:"multiplier"`
	PeriodicInterval string      `json:"periodic_interval"`
	Jobs             []JobStatus `json:"jobs"`
}

// Summary returns the scheduler state.
func (s *Scheduler) Summary() Summary {
	return Summary{
		Running:          s.host.IsRunning(),
		Multiplier:       s.Multiplier(),
		PeriodicInterval: s.PeriodicInterval().String(),
		Jobs:             s.host.Jobs(),
	}
}
