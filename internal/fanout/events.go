// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/models"
)

// SchemaVersion is the current envelope schema version.
// Increment this when making breaking changes to Envelope.
const SchemaVersion = 1

// EventType names a data change event on the wire.
type EventType string

// Event types.
const (
	TypeGoalCreated       EventType = "goal_created"
	TypeGoalUpdated       EventType = "goal_updated"
	TypeGoalDeleted       EventType = "goal_deleted"
	TypeGoalStatusChanged EventType = "goal_status_changed"
	TypeWeekChanged       EventType = "week_changed"
)

// Event is a goal data change. The set of events is closed.
type Event interface {
	Type() EventType
	isEvent()
}

// GoalCreated is emitted after a goal is added.
type GoalCreated struct{ GoalID string }

// GoalUpdated is emitted after a goal's text or images change.
type GoalUpdated struct{ GoalID string }

// GoalDeleted is emitted after a goal is removed.
type GoalDeleted struct{ GoalID string }

// GoalStatusChanged is emitted after a goal moves to a new status.
type GoalStatusChanged struct {
	GoalID    string
	NewStatus models.GoalStatus
}

// WeekChanged is emitted when the calendar rolls into a new ISO week.
type WeekChanged struct{}

func (GoalCreated) Type() EventType       { return TypeGoalCreated }
func (GoalUpdated) Type() EventType       { return TypeGoalUpdated }
func (GoalDeleted) Type() EventType       { return TypeGoalDeleted }
func (GoalStatusChanged) Type() EventType { return TypeGoalStatusChanged }
func (WeekChanged) Type() EventType       { return TypeWeekChanged }

func (GoalCreated) isEvent()       {}
func (GoalUpdated) isEvent()       {}
func (GoalDeleted) isEvent()       {}
func (GoalStatusChanged) isEvent() {}
func (WeekChanged) isEvent()       {}

// ParseEvent builds an event from its wire fields.
func ParseEvent(t EventType, goalID string, status models.GoalStatus) (Event, error) {
	switch t {
	case TypeWeekChanged:
		return WeekChanged{}, nil
	case TypeGoalCreated, TypeGoalUpdated, TypeGoalDeleted, TypeGoalStatusChanged:
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}

	if goalID == "" {
		return nil, fmt.Errorf("%s: goal id is required", t)
	}

	switch t {
	case TypeGoalCreated:
		return GoalCreated{GoalID: goalID}, nil
	case TypeGoalUpdated:
		return GoalUpdated{GoalID: goalID}, nil
	case TypeGoalDeleted:
		return GoalDeleted{GoalID: goalID}, nil
	default:
		st, err := models.ParseGoalStatus(string(status))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return GoalStatusChanged{GoalID: goalID, NewStatus: st}, nil
	}
}

// Envelope is the broadcast form of an event.
type Envelope struct {
	SchemaVersion int               `json:"schema_version"`
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Type          EventType         `json:"type"`
	Timestamp     time.Time         `json:"timestamp"`
	GoalID        string            `json:"goal_id,omitempty"`
	NewStatus     models.GoalStatus `json:"new_status,omitempty"`
}

// NewEnvelope wraps ev with a fresh message id and the correlation id in ctx.
func NewEnvelope(ctx context.Context, ev Event, at time.Time) Envelope {
	env := Envelope{
		SchemaVersion: SchemaVersion,
		ID:            uuid.New().String(),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		Type:          ev.Type(),
		Timestamp:     at.UTC(),
	}
	switch e := ev.(type) {
	case GoalCreated:
		env.GoalID = e.GoalID
	case GoalUpdated:
		env.GoalID = e.GoalID
	case GoalDeleted:
		env.GoalID = e.GoalID
	case GoalStatusChanged:
		env.GoalID = e.GoalID
		env.NewStatus = e.NewStatus
	}
	return env
}

// Event returns the event the envelope carries.
func (e Envelope) Event() (Event, error) {
	return ParseEvent(e.Type, e.GoalID, e.NewStatus)
}

// Encode marshals the envelope.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope unmarshals and checks an envelope. Newer schema versions
// are rejected.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.SchemaVersion > SchemaVersion {
		return Envelope{}, fmt.Errorf("unsupported envelope schema version %d", env.SchemaVersion)
	}
	return env, nil
}
