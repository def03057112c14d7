// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package validation wraps go-playground/validator with a shared instance,
// the custom tags Scuttle needs, and readable messages.
//
//	type evictRequest struct {
//	    Module string `validate:"omitempty,mountpath"`
//	}
//	if err := validation.ValidateStruct(&req); err != nil {
//	    // err.Violations() feeds the structured error payload
//	}
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var mountPathPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Violation describes one field that failed validation.
type Violation struct {
	What    string      `json:"what"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
	Tag     string      `json:"-"`
}

// Error collects the violations of one struct.
type Error struct {
	violations []Violation
}

// Violations returns the individual failures.
func (e *Error) Violations() []Violation {
	return e.violations
}

func (e *Error) Error() string {
	if len(e.violations) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.violations))
	for i, v := range e.violations {
		msgs[i] = v.Message
	}
	return strings.Join(msgs, "; ")
}

// Get returns the shared validator, creating it on first use.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// mountpath: a single path segment usable as a module mount point
		_ = validate.RegisterValidation("mountpath", func(fl validator.FieldLevel) bool {
			return IsMountPath(fl.Field().String())
		})
	})
	return validate
}

// IsMountPath reports whether s can be used as a mount point.
func IsMountPath(s string) bool {
	return mountPathPattern.MatchString(s)
}

// ValidateStruct validates s. It returns nil or an *Error.
func ValidateStruct(s interface{}) *Error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	return FromError(err)
}

// FromError converts a validator error into an *Error. Other errors become
// a single violation carrying their message.
func FromError(err error) *Error {
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{violations: []Violation{{What: "unknown", Message: err.Error()}}}
	}
	out := make([]Violation, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = Violation{
			What:    fe.Namespace(),
			Value:   fe.Value(),
			Message: message(fe),
			Tag:     fe.Tag(),
		}
	}
	return &Error{violations: out}
}

var messages = map[string]string{
	"required":  "%s is required",
	"mountpath": "%s must be a single path segment of letters, digits, '.', '_' or '-'",
	"url":       "%s must be a valid URL",
	"hostname":  "%s must be a valid hostname",
}

var messagesWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	if tpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tpl, field)
	}
	if tpl, ok := messagesWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tpl, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
