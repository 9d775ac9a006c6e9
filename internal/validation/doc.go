// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package validation wraps a singleton go-playground/validator instance with
// widget-specific tags and converts failures into the API error envelope.
//
//	type navigateRequest struct {
//	    Offset int `validate:"week_offset"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    var verr *validation.Error
//	    errors.As(err, &verr)
//	    ...
//	}
package validation
