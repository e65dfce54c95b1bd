package scanner

import (
	"fmt"
)

// DetectorFailedError is returned when a detector whose failures are fatal
// returns an error or panics.
type DetectorFailedError struct {
	Err        error
	DetectorID string
}

func (err DetectorFailedError) Error() string {
	return fmt.Sprintf("detector %s failed: %v", err.DetectorID, err.Err)
}

func (err DetectorFailedError) Unwrap() error {
	return err.Err
}
