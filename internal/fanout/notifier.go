// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/scheduler"
)

// Step names, in execution order.
const (
	StepDirectRefresh = "direct_refresh"
	StepSchedule      = "schedule"
	StepBroadcast     = "broadcast"
)

// ErrNoPublisher is returned by the broadcast step when no publisher is set.
var ErrNoPublisher = errors.New("no broadcast publisher configured")

// Refresher redraws every widget surface.
type Refresher interface {
	RefreshAll(ctx context.Context) []models.PerformanceSample
}

// JobScheduler enqueues refresh jobs.
type JobScheduler interface {
	ScheduleImmediate() (scheduler.JobStatus, error)
	ForceNow() (scheduler.JobStatus, error)
}

// StepResult is the outcome of one fan-out step.
type StepResult struct {
	Name     string        `json:"name"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report lists the result of every step of one Notify call.
type Report struct {
	Event         EventType    `json:"event"`
	MessageID     string       `json:"message_id"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Steps         []StepResult `json:"steps"`
}

// OK reports whether every step succeeded.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Failed returns the steps that returned an error.
func (r Report) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Notifier propagates data changes to every widget surface through three
// independent paths: a direct redraw, a scheduled refresh job and a
// broadcast on the message bus.
type Notifier struct {
	surfaces    Refresher
	sched       JobScheduler
	publisher   message.Publisher
	topic       string
	stepTimeout time.Duration
	now         func() time.Time
}

// NewNotifier creates a Notifier publishing on cfg.Topic.
func NewNotifier(cfg config.FanoutConfig, surfaces Refresher, sched JobScheduler, publisher message.Publisher) *Notifier {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Notifier{
		surfaces:    surfaces,
		sched:       sched,
		publisher:   publisher,
		topic:       topic,
		stepTimeout: cfg.StepTimeout,
		now:         time.Now,
	}
}

// Topic returns the broadcast topic.
func (n *Notifier) Topic() string {
	return n.topic
}

// Notify runs every step for ev. A failing or panicking step never stops the
// steps after it.
func (n *Notifier) Notify(ctx context.Context, ev Event) Report {
	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	env := NewEnvelope(ctx, ev, n.now())

	report := Report{
		Event:         ev.Type(),
		MessageID:     env.ID,
		CorrelationID: env.CorrelationID,
	}
	report.Steps = append(report.Steps,
		n.runStep(ctx, StepDirectRefresh, n.directRefresh),
		n.runStep(ctx, StepSchedule, func(context.Context) error {
			return n.schedule(ev)
		}),
		n.runStep(ctx, StepBroadcast, func(ctx context.Context) error {
			return n.broadcast(ctx, env)
		}),
	)

	log := logging.Ctx(ctx).Info()
	if !report.OK() {
		log = logging.Ctx(ctx).Warn().Int("failed_steps", len(report.Failed()))
	}
	log.Str("event", string(ev.Type())).
		Str("message_id", env.ID).
		Msg("Data change propagated")
	return report
}

func (n *Notifier) runStep(ctx context.Context, name string, fn func(context.Context) error) (res StepResult) {
	start := time.Now()
	res.Name = name
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%s panicked: %v", name, r)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Error = res.Err.Error()
			logging.Ctx(ctx).Warn().Err(res.Err).Str("step", name).Msg("Fan-out step failed")
		}
		metrics.RecordFanoutStep(name, res.Err)
	}()
	res.Err = fn(ctx)
	return res
}

func (n *Notifier) directRefresh(ctx context.Context) error {
	if n.surfaces == nil {
		return errors.New("no render surfaces")
	}
	if n.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.stepTimeout)
		defer cancel()
	}

	samples := n.surfaces.RefreshAll(ctx)
	failed := 0
	for _, s := range samples {
		if s.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d widget refreshes failed", failed, len(samples))
	}
	return nil
}

func (n *Notifier) schedule(ev Event) error {
	if n.sched == nil {
		return errors.New("no scheduler")
	}
	if _, ok := ev.(WeekChanged); ok {
		_, err := n.sched.ForceNow()
		return err
	}
	_, err := n.sched.ScheduleImmediate()
	return err
}

func (n *Notifier) broadcast(ctx context.Context, env Envelope) error {
	if n.publisher == nil {
		return ErrNoPublisher
	}
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	msg := message.NewMessage(env.ID, payload)
	msg.Metadata.Set("event_type", string(env.Type))
	if env.CorrelationID != "" {
		msg.Metadata.Set("correlation_id", env.CorrelationID)
	}
	msg.SetContext(ctx)
	if err := n.publisher.Publish(n.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

// ReportOutcome is called by a surface after it loads. A retryable error
// schedules an immediate refresh; an authentication error is only logged
// because it needs the user to sign in. It reports whether a retry was
// scheduled.
func (n *Notifier) ReportOutcome(ctx context.Context, widgetID int, outcome models.RefreshOutcome) bool {
	if !outcome.IsError() {
		return false
	}
	kind := outcome.ErrorKind()
	log := logging.Ctx(ctx).With().Int("widget_id", widgetID).Str("error_kind", string(kind)).Logger()

	if !kind.Retryable() {
		log.Warn().Msg("Widget load needs user action, not retrying")
		return false
	}
	if n.sched == nil {
		return false
	}
	if _, err := n.sched.ScheduleImmediate(); err != nil {
		log.Warn().Err(err).Msg("Failed to schedule widget retry")
		return false
	}
	log.Debug().Msg("Scheduled widget retry")
	return true
}
