// Package errs defines Grace's closed error taxonomy: the seven kinds
// from the error handling design, each a distinct Go type implementing
// error and Unwrap, carrying a stable Code, Title and Message alongside
// the wrapped cause.
package errs

import (
	"fmt"
	"strings"
)

// ValidationError indicates bad input: unknown enum value, out-of-range
// number, malformed UUID, or a name that fails the naming regex.
type ValidationError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e ValidationError) Error() string { return format(e.Code, e.Message, e.Err) }
func (e ValidationError) Unwrap() error { return e.Err }

// NotFoundError indicates an entity or reference the caller referenced
// does not exist.
type NotFoundError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e NotFoundError) Error() string { return format(e.Code, e.Message, e.Err) }
func (e NotFoundError) Unwrap() error { return e.Err }

// ConflictError indicates a name already in use, a duplicate
// correlation-id, or a command that is illegal in the entity's current
// lifecycle state.
type ConflictError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e ConflictError) Error() string { return format(e.Code, e.Message, e.Err) }
func (e ConflictError) Unwrap() error { return e.Err }

// PreconditionFailedError indicates a command that is individually
// well-formed but rejected by business rules: a disabled reference
// type, a branch not based on the parent's latest promotion, a
// non-empty repository rejecting deletion without --force.
type PreconditionFailedError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e PreconditionFailedError) Error() string { return format(e.Code, e.Message, e.Err) }
func (e PreconditionFailedError) Unwrap() error { return e.Err }

// IntegrityError indicates a computed hash or declared size mismatch.
type IntegrityError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e IntegrityError) Error() string { return format(e.Code, e.Message, e.Err) }
func (e IntegrityError) Unwrap() error { return e.Err }

// DependencyFailureError indicates the state store, event bus, or an
// external collaborator was unreachable. Surfacing one of these during
// ApplyEvent is the actor host's signal to poison the actor.
type DependencyFailureError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e DependencyFailureError) Error() string { return format(e.Code, e.Message, e.Err) }
func (e DependencyFailureError) Unwrap() error { return e.Err }

// InternalError indicates an unexpected exception with no more specific
// classification.
type InternalError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e InternalError) Error() string { return format(e.Code, e.Message, e.Err) }
func (e InternalError) Unwrap() error { return e.Err }

func format(code, message string, err error) string {
	switch {
	case strings.TrimSpace(message) != "":
		if strings.TrimSpace(code) != "" {
			return fmt.Sprintf("%s - %s", code, message)
		}

		return message
	case err != nil:
		return err.Error()
	default:
		return "unspecified error"
	}
}

// IsDependencyFailure reports whether err (or something it wraps) is a
// DependencyFailureError — the actor host's poisoning signal.
func IsDependencyFailure(err error) bool {
	var dep DependencyFailureError

	return asDependencyFailure(err, &dep)
}

func asDependencyFailure(err error, target *DependencyFailureError) bool {
	for err != nil {
		if d, ok := err.(DependencyFailureError); ok { //nolint:errorlint
			*target = d
			return true
		}

		unwrapper, ok := err.(interface{ Unwrap() error }) //nolint:errorlint
		if !ok {
			return false
		}

		err = unwrapper.Unwrap()
	}

	return false
}
