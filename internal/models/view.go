package models

import (
	"fmt"
	"strings"
)

// Axis identifies one of the three orthogonal viewing planes
type Axis int

const (
	Axial Axis = iota
	Coronal
	Sagittal
)

// Axes lists the planes in display order
var Axes = []Axis{Axial, Coronal, Sagittal}

func (a Axis) String() string {
	switch a {
	case Axial:
		return "axial"
	case Coronal:
		return "coronal"
	case Sagittal:
		return "sagittal"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// ParseAxis converts a plane name to an Axis
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "axial", "z":
		return Axial, nil
	case "coronal", "y":
		return Coronal, nil
	case "sagittal", "x":
		return Sagittal, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be axial, coronal or sagittal)", s)
}

// SliceView is a 2D image derived from a volume for display. It is
// computed per request and never persisted.
type SliceView struct {
	Axis  Axis
	Index int

	Rows int
	Cols int

	// Pix holds Rows*Cols values, row-major
	Pix []float64
}

// At returns the value at (row, col)
func (s *SliceView) At(row, col int) float64 {
	return s.Pix[row*s.Cols+col]
}
