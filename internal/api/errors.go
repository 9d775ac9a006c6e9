// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package api

import "errors"

var (
	// ErrEmptyBody is returned when a request requires a body and has none.
	ErrEmptyBody = errors.New("request body is empty")

	// ErrInvalidWidgetID is returned for a non-numeric or negative widget id.
	ErrInvalidWidgetID = errors.New("invalid widget id")
)
