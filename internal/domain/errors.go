package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed task or integration configuration. It is
// raised synchronously at save time and maps to a 400 response.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConnectionError marks an unreachable source or destination integration.
// During a run it is captured in the TaskRun log, never propagated to the
// scheduler loop.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Connectionf wraps err as a ConnectionError for the given operation.
func Connectionf(op string, err error) error {
	return &ConnectionError{Op: op, Err: err}
}

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// SchemaError marks a failed schema inference or materialization: a column
// type incompatible with the destination dialect, or an unresolved identifier
// collision. Materialize fails atomically on it.
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string {
	return e.Msg
}

// Schemaf builds a SchemaError from a format string.
func Schemaf(format string, args ...interface{}) error {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}

// IsSchema reports whether err is a SchemaError.
func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// ErrTaskAlreadyRunning rejects a redundant trigger for a task that already
// has an in-flight run. No new TaskRun is created for it.
var ErrTaskAlreadyRunning = errors.New("task is already running")
