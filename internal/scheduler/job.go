// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package scheduler

import (
	"context"
	"errors"
	"time"
)

// JobKind distinguishes recurring from one-shot jobs.
type JobKind int

const (
	OneShot JobKind = iota
	Periodic
)

func (k JobKind) String() string {
	if k == Periodic {
		return "periodic"
	}
	return "one_shot"
}

// ExistingPolicy decides what Enqueue does when the identity is taken.
type ExistingPolicy int

const (
	// Keep leaves the active job in place and returns it.
	Keep ExistingPolicy = iota
	// Replace cancels the active job and enqueues the new one.
	Replace
)

// BackoffPolicy shapes the retry delay.
type BackoffPolicy int

const (
	Exponential BackoffPolicy = iota
	Linear
)

// Backoff configures retry delays.
type Backoff struct {
	Policy BackoffPolicy
	Base   time.Duration
	Max    time.Duration
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch b.Policy {
	case Linear:
		d = b.Base * time.Duration(attempt)
	default:
		shift := attempt - 1
		if shift > 30 {
			shift = 30
		}
		d = b.Base * time.Duration(1<<shift)
	}
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

// Constraints gate a job on device conditions.
type Constraints struct {
	RequireNetwork   bool
	RequireBatteryOK bool
}

// DeviceConditions reports the signals constraints are evaluated against.
type DeviceConditions interface {
	IsNetworkAvailable() bool
	IsBatteryOK() bool
}

// JobFunc is a job body.
type JobFunc func(ctx context.Context) error

// JobSpec describes a job to enqueue.
type JobSpec struct {
	Identity string
	Tags     []string
	Kind     JobKind

	// Interval is the periodic interval. IntervalFunc, when set, is consulted
	// at every reschedule instead.
	Interval     time.Duration
	IntervalFunc func() time.Duration

	// Flex lets a periodic run start up to Flex before its interval ends.
	Flex time.Duration

	// InitialDelay postpones the first run.
	InitialDelay time.Duration

	Constraints Constraints
	Backoff     Backoff
	MaxAttempts int
	Policy      ExistingPolicy

	Run JobFunc
}

func (s JobSpec) interval() time.Duration {
	if s.IntervalFunc != nil {
		return s.IntervalFunc()
	}
	return s.Interval
}

// HasTag reports whether the spec carries tag.
func (s JobSpec) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// JobState is a job lifecycle state.
type JobState string

const (
	StateIdle      JobState = "idle"
	StateScheduled JobState = "scheduled"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Active reports whether a job in this state may still run.
func (s JobState) Active() bool {
	return s == StateIdle || s == StateScheduled || s == StateRunning
}

// JobStatus is a snapshot of a job.
type JobStatus struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Tags      []string  `json:"tags"`
	Kind      string    `json:"kind"`
	State     JobState  `json:"state"`
	Attempt   int       `json:"attempt"`
	Runs      int       `json:"runs"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// JobFailed is emitted when a job will not be retried.
type JobFailed struct {
	ID        string
	Identity  string
	Tags      []string
	Attempts  int
	Permanent bool
	Err       error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
