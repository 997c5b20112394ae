package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"dicomlabeler/internal/models"
	"dicomlabeler/pkg/interpolation"
)

// ErrIndexOutOfRange is returned when a slice index lies outside the
// extent of the requested axis
var ErrIndexOutOfRange = errors.New("slice index out of range")

// Viewer derives orthogonal 2D views from a reconstructed volume
type Viewer struct {
	// volume holds the [row, column, slice] data
	volume *models.Volume
}

// NewViewer creates a viewer over volume. The volume is only read.
func NewViewer(volume *models.Volume) *Viewer {
	return &Viewer{volume: volume}
}

// Volume returns the volume being viewed
func (v *Viewer) Volume() *models.Volume {
	return v.volume
}

// Extent returns the number of valid indices along axis: the slice count
// for axial, the row count for coronal and the column count for sagittal
func (v *Viewer) Extent(axis models.Axis) int {
	switch axis {
	case models.Coronal:
		return v.volume.Rows
	case models.Sagittal:
		return v.volume.Cols
	default:
		return v.volume.Depth
	}
}

// Clamp bounds index to [0, Extent(axis)-1]
func (v *Viewer) Clamp(axis models.Axis, index int) int {
	if index < 0 {
		return 0
	}
	if last := v.Extent(axis) - 1; index > last {
		return last
	}
	return index
}

// DefaultIndex is the middle of the axial extent
func (v *Viewer) DefaultIndex() int {
	return (v.volume.Depth - 1) / 2
}

// CrossSection extracts the plane at index along axis without any
// resampling:
//
//	axial    = volume[:, :, index]  (rows x cols)
//	coronal  = volume[index, :, :]  (cols x depth)
//	sagittal = volume[:, index, :]  (rows x depth)
func (v *Viewer) CrossSection(axis models.Axis, index int) (*mat.Dense, error) {
	if index < 0 || index >= v.Extent(axis) {
		return nil, fmt.Errorf("%w: %s index %d, extent %d", ErrIndexOutOfRange, axis, index, v.Extent(axis))
	}

	vol := v.volume
	switch axis {
	case models.Axial:
		m := mat.NewDense(vol.Rows, vol.Cols, nil)
		for y := 0; y < vol.Rows; y++ {
			for x := 0; x < vol.Cols; x++ {
				m.Set(y, x, vol.At(y, x, index))
			}
		}
		return m, nil

	case models.Coronal:
		m := mat.NewDense(vol.Cols, vol.Depth, nil)
		for x := 0; x < vol.Cols; x++ {
			for z := 0; z < vol.Depth; z++ {
				m.Set(x, z, vol.At(index, x, z))
			}
		}
		return m, nil

	case models.Sagittal:
		m := mat.NewDense(vol.Rows, vol.Depth, nil)
		for y := 0; y < vol.Rows; y++ {
			for z := 0; z < vol.Depth; z++ {
				m.Set(y, z, vol.At(y, index, z))
			}
		}
		return m, nil
	}

	return nil, fmt.Errorf("invalid axis: %v", axis)
}

// Reslice produces the display image for axis at index:
// 1. extract the cross-section
// 2. for coronal and sagittal, rotate a quarter turn and resize to a
//    rows x rows square
// 3. threshold = max * (2*percent/100 - 1)
// 4. values strictly below the threshold become the cross-section minimum
// 5. normalize to [0, 1]
func (v *Viewer) Reslice(axis models.Axis, index int, percent float64) (*models.SliceView, error) {
	m, err := v.CrossSection(axis, index)
	if err != nil {
		return nil, err
	}

	if axis != models.Axial {
		m = interpolation.ResizeBilinear(interpolation.Rotate90(m), v.volume.Rows, v.volume.Rows)
	}

	rows, cols := m.Dims()
	view := &models.SliceView{
		Axis:  axis,
		Index: index,
		Rows:  rows,
		Cols:  cols,
		Pix:   make([]float64, rows*cols),
	}
	for y := 0; y < rows; y++ {
		copy(view.Pix[y*cols:(y+1)*cols], m.RawRowView(y))
	}

	Filter(view.Pix, Threshold(floats.Max(view.Pix), percent))
	Normalize(view.Pix)

	return view, nil
}

// Views reslices all three planes at index, clamping the index to each
// axis, in models.Axes order
func (v *Viewer) Views(index int, percent float64) ([]*models.SliceView, error) {
	views := make([]*models.SliceView, 0, len(models.Axes))
	for _, axis := range models.Axes {
		view, err := v.Reslice(axis, v.Clamp(axis, index), percent)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Scale resizes a view to width pixels, keeping its aspect ratio. A width
// of zero or the current width returns view unchanged.
func Scale(view *models.SliceView, width int) *models.SliceView {
	if width <= 0 || width == view.Cols || view.Cols == 0 {
		return view
	}
	height := int(math.Max(1, math.Round(float64(view.Rows*width)/float64(view.Cols))))

	src := mat.NewDense(view.Rows, view.Cols, append([]float64(nil), view.Pix...))
	m := interpolation.ResizeBilinear(src, height, width)

	scaled := &models.SliceView{
		Axis:  view.Axis,
		Index: view.Index,
		Rows:  height,
		Cols:  width,
		Pix:   make([]float64, height*width),
	}
	for y := 0; y < height; y++ {
		copy(scaled.Pix[y*width:(y+1)*width], m.RawRowView(y))
	}
	return scaled
}

// ClampPercent bounds a threshold percentage to [0, 100]
func ClampPercent(percent float64) float64 {
	return math.Max(0, math.Min(100, percent))
}

// Threshold maps a 0-100 percentage onto [-maxVal, +maxVal]; 50 maps to 0
func Threshold(maxVal, percent float64) float64 {
	return maxVal * ((2 * ClampPercent(percent) / 100) - 1)
}

// Filter replaces every value strictly below threshold with the minimum
// of pix. Other values are left unchanged.
func Filter(pix []float64, threshold float64) {
	if len(pix) == 0 {
		return
	}
	lowest := floats.Min(pix)
	for i, p := range pix {
		if p < threshold {
			pix[i] = lowest
		}
	}
}

// Normalize rescales pix in place to [0, 1] using its own min and max.
// A flat input becomes all zeros.
func Normalize(pix []float64) {
	if len(pix) == 0 {
		return
	}
	lo, hi := floats.Min(pix), floats.Max(pix)
	if hi == lo {
		for i := range pix {
			pix[i] = 0
		}
		return
	}
	floats.AddConst(-lo, pix)
	span := hi - lo
	for i := range pix {
		pix[i] /= span
	}
}

// ToImage converts a normalized view to a 16-bit grayscale image
func ToImage(view *models.SliceView) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, view.Cols, view.Rows))
	for y := 0; y < view.Rows; y++ {
		for x := 0; x < view.Cols; x++ {
			value := uint16(math.Max(0, math.Min(65535, view.At(y, x)*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img
}

// EncodePNG writes the view as a PNG image
func EncodePNG(w io.Writer, view *models.SliceView) error {
	return png.Encode(w, ToImage(view))
}

// SaveSlice saves a view as a PNG file
func (v *Viewer) SaveSlice(view *models.SliceView, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := EncodePNG(file, view); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence reslices and saves every index along axis
func (v *Viewer) SaveSliceSequence(axis models.Axis, outputDir string, percent float64) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.Extent(axis); pos++ {
		view, err := v.Reslice(axis, pos, percent)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(view, filename); err != nil {
			return err
		}
	}

	return nil
}
