// Package apperr holds the error taxonomy shared by the sale-closing and
// document-issuing flows. Callers match with errors.Is against the sentinel
// kinds or errors.As against the concrete types.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNumberingConflict = errors.New("could not generate document number, try again")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvariant         = errors.New("invariant violation")
)

// Violations collects field -> code pairs while validating a request.
type Violations map[string]string

func (v Violations) Add(field, code string) {
	if _, ok := v[field]; !ok {
		v[field] = code
	}
}

func (v Violations) Empty() bool { return len(v) == 0 }

// Err returns nil when nothing was recorded.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Violations: v}
}

// ValidationError reports missing or invalid input. Nothing has been written
// when it is returned.
type ValidationError struct {
	Violations Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.Violations[f])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Field returns the violation code recorded for field, if any.
func (e *ValidationError) Field(field string) (string, bool) {
	code, ok := e.Violations[field]
	return code, ok
}

func NewValidationError(field, code string) *ValidationError {
	return &ValidationError{Violations: Violations{field: code}}
}

// NumberingConflictError is returned once allocation retries are exhausted.
type NumberingConflictError struct {
	Scope    string
	Attempts int
	Err      error
}

func (e *NumberingConflictError) Error() string {
	return fmt.Sprintf("numbering %s: gave up after %d attempts: %v", e.Scope, e.Attempts, e.Err)
}

func (e *NumberingConflictError) Unwrap() error { return e.Err }

func (e *NumberingConflictError) Is(target error) bool { return target == ErrNumberingConflict }

// PersistenceError wraps a store failure. The operation was aborted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err unless it already carries a taxonomy kind.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrInvariant) ||
		errors.Is(err, ErrNumberingConflict) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// InvariantViolation marks a request the state machine should never have let
// through. It is not retried.
type InvariantViolation struct {
	Op     string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *InvariantViolation) Is(target error) bool { return target == ErrInvariant }

func NewInvariantViolation(op, reason string) *InvariantViolation {
	return &InvariantViolation{Op: op, Reason: reason}
}
