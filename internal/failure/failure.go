// Package failure defines the error taxonomy shared by every corridor tool.
//
// Packages wrap one of the sentinel categories with fmt.Errorf("%w: ...") so
// orchestrators can classify any error with errors.Is. Per-line skips are
// values (SkipError), not control flow: a skipped line never aborts a batch.
package failure

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks malformed or inconsistent input (bad geometry, CRS mismatch,
	// missing layer).
	ErrInput = errors.New("input error")
	// ErrComputation marks a failure inside a raster or geometry computation.
	ErrComputation = errors.New("computation error")
	// ErrAggregation is returned when a tool has no valid results to write.
	ErrAggregation = errors.New("no valid results")
	// ErrPartialFailure is returned when a worker pool fails as a whole.
	ErrPartialFailure = errors.New("batch failed")
)

// SkipReason names why a single line produced no output.
type SkipReason int

const (
	SkipUnknown SkipReason = iota
	SkipEmptyGeometry
	SkipNodataWindow
	SkipNoCorridor
	SkipDisconnected
	SkipDegenerate
)

func (r SkipReason) String() string {
	switch r {
	case SkipEmptyGeometry:
		return "empty_geometry"
	case SkipNodataWindow:
		return "nodata_window"
	case SkipNoCorridor:
		return "no_corridor"
	case SkipDisconnected:
		return "disconnected"
	case SkipDegenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// SkipError reports that one item was skipped. Err, if set, is the
// underlying cause.
type SkipError struct {
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err == nil {
		return "skipped: " + e.Reason.String()
	}
	return fmt.Sprintf("skipped (%s): %v", e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// Skip builds a SkipError.
func Skip(reason SkipReason, err error) error {
	return &SkipError{Reason: reason, Err: err}
}

// ReasonOf returns the skip reason carried by err, or SkipUnknown.
func ReasonOf(err error) SkipReason {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason
	}
	return SkipUnknown
}

// Inputf wraps ErrInput with a formatted message.
func Inputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// Computationf wraps ErrComputation with a formatted message.
func Computationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrComputation, fmt.Sprintf(format, args...))
}
