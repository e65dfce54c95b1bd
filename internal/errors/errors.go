// Package errors wraps errors with stack traces, collects multiple failures and
// converts panics raised inside detectors into ordinary errors.
package errors

import (
	"context"
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrNoSourceDirectory is returned when the scan root is missing or is not a directory.
var ErrNoSourceDirectory = errors.New("source directory does not exist or is not a directory")

// New wraps the given value in an error carrying the current stack trace. Strings
// become the error message; errors that already carry a stack are returned as-is.
func New(val any) error {
	if val == nil {
		return nil
	}

	if err, ok := val.(error); ok && ContainsStackTrace(err) {
		return err
	}

	return goerrors.Wrap(val, 1)
}

// Errorf formats an error message and attaches the current stack trace.
func Errorf(format string, args ...any) error {
	return goerrors.Wrap(fmt.Errorf(format, args...), 1) //nolint:err113
}

// ErrorStack returns the stack traces of every wrapped error, newline separated.
func ErrorStack(err error) string {
	var out string

	for _, err := range UnwrapMultiErrors(err) {
		for err != nil {
			if withStack, ok := err.(interface{ ErrorStack() string }); ok {
				if out != "" {
					out += "\n"
				}

				out += withStack.ErrorStack()

				break
			}

			err = errors.Unwrap(err)
		}
	}

	return out
}

// ContainsStackTrace reports whether err, or anything it wraps, already has a stack trace.
func ContainsStackTrace(err error) bool {
	for _, err := range UnwrapMultiErrors(err) {
		for err != nil {
			if _, ok := err.(interface{ ErrorStack() string }); ok {
				return true
			}

			err = errors.Unwrap(err)
		}
	}

	return false
}

// IsContextCanceled returns true if err was caused by context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Recover recovers from a panic and hands the cause to onPanic as an error.
// It must be called directly from a defer statement.
func Recover(onPanic func(cause error)) {
	if rec := recover(); rec != nil {
		err, isError := rec.(error)
		if !isError {
			err = fmt.Errorf("panic: %v", rec) //nolint:err113
		}

		onPanic(New(err))
	}
}

// UnwrapMultiErrors flattens every nested multi-error into a single slice.
func UnwrapMultiErrors(err error) []error {
	errs := []error{err}

	for index := 0; index < len(errs); index++ {
		err := errs[index]

		for err != nil {
			if multi, ok := err.(interface{ Unwrap() []error }); ok {
				errs = append(errs[:index], errs[index+1:]...)
				index--

				errs = append(errs, multi.Unwrap()...)

				break
			}

			err = errors.Unwrap(err)
		}
	}

	return errs
}
