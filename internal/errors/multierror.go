package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// MultiError tracks several independent failures, e.g. one per failed detector.
// The zero value is ready to use; Append returns the grown value.
type MultiError struct {
	inner *multierror.Error
}

// Error renders every wrapped error as an indented bullet list, sorted so the
// message is stable regardless of the order in which goroutines failed.
func (errs *MultiError) Error() string {
	wrapped := UnwrapMultiErrors(errs)

	lines := make([]string, 0, len(wrapped))
	for _, err := range wrapped {
		lines = append(lines, addIndent(err.Error()))
	}

	sort.Strings(lines)

	if len(lines) == 1 {
		return fmt.Sprintf("error occurred:\n\n%s\n", lines[0])
	}

	return fmt.Sprintf("%d errors occurred:\n\n%s\n", len(lines), strings.Join(lines, "\n\n"))
}

// WrappedErrors returns the errors collected so far.
func (errs *MultiError) WrappedErrors() []error {
	if errs == nil || errs.inner == nil {
		return nil
	}

	return errs.inner.WrappedErrors()
}

func (errs *MultiError) Unwrap() []error {
	return errs.WrappedErrors()
}

// Len returns the number of collected errors.
func (errs *MultiError) Len() int {
	return len(errs.WrappedErrors())
}

// ErrorOrNil returns errs as an error if at least one error was collected, nil otherwise.
func (errs *MultiError) ErrorOrNil() error {
	if errs == nil || errs.inner == nil {
		return nil
	}

	if err := errs.inner.ErrorOrNil(); err != nil {
		return errs
	}

	return nil
}

// Append adds errors and returns the resulting MultiError. Nil errors are dropped.
func (errs *MultiError) Append(appendErrs ...error) *MultiError {
	if errs == nil {
		errs = &MultiError{}
	}

	if errs.inner == nil {
		errs.inner = new(multierror.Error)
	}

	var nonNil []error

	for _, err := range appendErrs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	return &MultiError{inner: multierror.Append(errs.inner, nonNil...)}
}

func addIndent(str string) string {
	str = strings.ReplaceAll(str, "\r\n", "\n")
	rawLines := strings.Split(str, "\n")

	lines := make([]string, 0, len(rawLines))
	for i, line := range rawLines {
		if i == 0 {
			lines = append(lines, "* "+line)
			continue
		}

		lines = append(lines, "  "+line)
	}

	return strings.Join(lines, "\n")
}
