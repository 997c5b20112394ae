package models

// Slice represents a single parsed DICOM slice with the metadata
// needed to place it inside a volume
type Slice struct {
	// Path is the file the slice was read from
	Path string

	// Order is the embedded ordering attribute (instance number, slice
	// location or patient z position, in that order of preference)
	Order float64

	// HasOrder reports whether any ordering attribute was present
	HasOrder bool

	// Rows and Cols are the pixel extents of the slice
	Rows int
	Cols int

	// Pixels holds Rows*Cols intensities in modality units, row-major
	Pixels []float64

	// Attributes holds descriptive string attributes keyed by keyword
	Attributes map[string]string
}

// Volume represents a 3D volume stacked from the slices of one series.
//
// The axes are [row, column, slice] and the data is stored flat with the
// slice index varying fastest: index = (row*Cols + col)*Depth + slice.
type Volume struct {
	// Data holds Rows*Cols*Depth signed intensities in modality units
	Data []float64

	// Rows is the number of pixel rows of every slice
	Rows int

	// Cols is the number of pixel columns of every slice
	Cols int

	// Depth is the number of stacked slices
	Depth int
}

// NewVolume allocates a zeroed volume of the given shape
func NewVolume(rows, cols, depth int) *Volume {
	return &Volume{
		Data:  make([]float64, rows*cols*depth),
		Rows:  rows,
		Cols:  cols,
		Depth: depth,
	}
}

// Index returns the flat offset of the voxel at (row, col, slice)
func (v *Volume) Index(row, col, slice int) int {
	return (row*v.Cols+col)*v.Depth + slice
}

// At returns the voxel at (row, col, slice)
func (v *Volume) At(row, col, slice int) float64 {
	return v.Data[v.Index(row, col, slice)]
}

// Set stores a voxel value at (row, col, slice)
func (v *Volume) Set(row, col, slice int, value float64) {
	v.Data[v.Index(row, col, slice)] = value
}

// Shape returns the (rows, cols, depth) extents
func (v *Volume) Shape() (int, int, int) {
	return v.Rows, v.Cols, v.Depth
}
