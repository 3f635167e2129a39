// Package errs defines the error classes every endpoint distinguishes:
// bad input, upstream degradation, and storage failure.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError marks empty or malformed input. It fails fast at the
// pipeline entry and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError for one field.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UpstreamError marks an unreachable or failing external service. Callers
// degrade to a documented fallback where one exists.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError for the named service.
func Upstream(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}

// StoreError marks a failed document-store operation, tagged with the
// pipeline stage that issued it.
type StoreError struct {
	Stage string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure in %s: %v", e.Stage, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError for the named stage.
func Store(stage string, err error) error {
	return &StoreError{Stage: stage, Err: err}
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsUpstream reports whether err is an UpstreamError anywhere in its chain.
func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}

// IsStore reports whether err is a StoreError anywhere in its chain.
func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
