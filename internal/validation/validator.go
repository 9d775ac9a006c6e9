// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/weekline/internal/models"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Message
}

// Error collects the field failures of one struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// ToAPIError converts the failure to the API error envelope.
func (e *Error) ToAPIError() *models.APIError {
	details := map[string]interface{}{}
	if len(e.Fields) == 1 {
		details["field"] = e.Fields[0].Field
		details["tag"] = e.Fields[0].Tag
	} else if len(e.Fields) > 1 {
		details["fields"] = e.Fields
	}
	return &models.APIError{
		Code:    "VALIDATION_ERROR",
		Message: e.Error(),
		Details: details,
	}
}

// GetValidator returns the singleton validator instance with the widget
// specific tags registered:
//
//	goal_status   one of the GoalStatus values
//	week_offset   within [MinWeekOffset, MaxWeekOffset]
//	period_week   an ISO week number (1-53)
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		mustRegister("goal_status", func(fl validator.FieldLevel) bool {
			_, err := models.ParseGoalStatus(fl.Field().String())
			return err == nil
		})
		mustRegister("week_offset", func(fl validator.FieldLevel) bool {
			v := fl.Field().Int()
			return v >= models.MinWeekOffset && v <= models.MaxWeekOffset
		})
		mustRegister("period_week", func(fl validator.FieldLevel) bool {
			v := fl.Field().Int()
			return v >= 1 && v <= 53
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// ValidateStruct validates s. It returns nil or an *Error.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Error{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return &Error{Fields: fields}
}

var errorMessageTemplates = map[string]string{
	"required":    "%s is required",
	"goal_status": "%s must be one of ACTIVE, COMPLETED, FAILED, ARCHIVED",
	"week_offset": "%s must be between -4 and 0",
	"period_week": "%s must be an ISO week number (1-53)",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

func translateError(fe validator.FieldError) string {
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field())
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
