package reconstruction

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableSlice is returned when a slice file cannot be parsed or
	// carries no usable pixel data
	ErrUnreadableSlice = errors.New("unreadable slice")

	// ErrInconsistentGeometry is returned when the slices of a series do not
	// share the same rows and columns. Slices are never resampled.
	ErrInconsistentGeometry = errors.New("inconsistent slice geometry")

	// ErrTooFewSlices is returned when a directory holds fewer than two slices
	ErrTooFewSlices = errors.New("series needs at least 2 slices")
)

// SliceError records which file failed to load
type SliceError struct {
	Path string
	Err  error
}

func (e *SliceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnreadableSlice, e.Path, e.Err)
}

// Unwrap lets errors.Is match both ErrUnreadableSlice and the cause
func (e *SliceError) Unwrap() []error {
	return []error{ErrUnreadableSlice, e.Err}
}
