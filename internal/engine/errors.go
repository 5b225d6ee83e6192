package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrOwnerResolution is returned when no owner can be determined for an upload or list.
	ErrOwnerResolution = errors.New("no owner selected and none known")
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// TransportError wraps a failed call to the ingestion API.
type TransportError struct {
	Op    string
	JobID string
	Err   error
}

func (e *TransportError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.JobID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
