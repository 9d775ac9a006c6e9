// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package models

// ErrorKind classifies a failed widget load.
type ErrorKind string

// Error kinds shown on widget surfaces.
const (
	ErrorNetworkUnavailable ErrorKind = "NETWORK_UNAVAILABLE"
	ErrorAuthentication     ErrorKind = "AUTHENTICATION_ERROR"
	ErrorDataLoadFailure    ErrorKind = "DATA_LOAD_FAILURE"
	ErrorTimeout            ErrorKind = "TIMEOUT"
	ErrorCustom             ErrorKind = "CUSTOM_ERROR"
)

// Message returns the user-visible text for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorNetworkUnavailable:
		return "No internet connection"
	case ErrorAuthentication:
		return "Please sign in to view goals"
	case ErrorDataLoadFailure:
		return "Failed to load goals"
	case ErrorTimeout:
		return "Loading timed out"
	default:
		return "Something went wrong"
	}
}

// Retryable reports whether callers may retry automatically. Authentication
// errors need user action.
func (k ErrorKind) Retryable() bool {
	return k != ErrorAuthentication
}

// WidgetError is a classified load failure.
type WidgetError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewWidgetError returns an error of kind with its default message.
func NewWidgetError(kind ErrorKind) *WidgetError {
	return &WidgetError{Kind: kind, Message: kind.Message()}
}

// CustomError returns an unclassified error carrying its own message.
func CustomError(message string) *WidgetError {
	return &WidgetError{Kind: ErrorCustom, Message: message}
}

// Error implements error.
func (e *WidgetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Message()
}

// Retryable reports whether the error may be retried automatically.
func (e *WidgetError) Retryable() bool {
	return e.Kind.Retryable()
}

// OutcomeKind discriminates RefreshOutcome variants.
type OutcomeKind int

// Outcome variants.
const (
	OutcomeLoading OutcomeKind = iota
	OutcomeSuccess
	OutcomeError
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "loading"
	}
}

// RefreshOutcome is the result of one load: Success(items, stale),
// Error(kind) or Loading. It is consumed once and never persisted.
type RefreshOutcome struct {
	Kind    OutcomeKind    `json:"kind"`
	Items   []GoalSnapshot `json:"items,omitempty"`
	IsStale bool           `json:"is_stale,omitempty"`
	Err     *WidgetError   `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Success returns a successful outcome.
func Success(items []GoalSnapshot, stale bool) RefreshOutcome {
	if items == nil {
		items = []GoalSnapshot{}
	}
	return RefreshOutcome{Kind: OutcomeSuccess, Items: items, IsStale: stale}
}

// Failure returns an error outcome.
func Failure(err *WidgetError) RefreshOutcome {
	return RefreshOutcome{Kind: OutcomeError, Err: err}
}

// FailureKind returns an error outcome of kind with its default message.
func FailureKind(kind ErrorKind) RefreshOutcome {
	return Failure(NewWidgetError(kind))
}

// Loading returns a loading placeholder outcome.
func Loading(message string) RefreshOutcome {
	return RefreshOutcome{Kind: OutcomeLoading, Message: message}
}

// IsSuccess reports whether the outcome carries items.
func (o RefreshOutcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }

// IsError reports whether the outcome is an error.
func (o RefreshOutcome) IsError() bool { return o.Kind == OutcomeError }

// ErrorKind returns the error kind, or "" when the outcome is not an error.
func (o RefreshOutcome) ErrorKind() ErrorKind {
	if o.Err == nil {
		return ""
	}
	return o.Err.Kind
}
