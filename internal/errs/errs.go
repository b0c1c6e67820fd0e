// Package errs defines the error taxonomy shared across the alerting core.
//
// Validation errors surface to the direct caller of a management operation,
// not-found errors deliberately cover both missing rows and rows owned by
// another team, and security errors reject unsafe channel configuration.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports invalid caller input: a bad enum string, an
// illegal status transition, or an out-of-bounds threshold.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validation creates a ValidationError with a formatted message.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing resource. A resource that exists but
// belongs to another team is also reported as not found, so callers cannot
// probe for cross-team existence.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NotFound creates a NotFoundError for the given resource and id.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// SecurityError reports a rejected channel configuration, such as a webhook
// URL resolving to a private address range.
type SecurityError struct {
	Msg string
}

func (e *SecurityError) Error() string {
	return e.Msg
}

// Security creates a SecurityError with a formatted message.
func Security(format string, args ...interface{}) error {
	return &SecurityError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsSecurity reports whether err is a SecurityError.
func IsSecurity(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}
