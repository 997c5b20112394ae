// Package reconstruction builds a 3D volume from the DICOM slices of one
// series directory.
package reconstruction

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dicomlabeler/internal/models"
)

// DefaultExtensions lists the slice file extensions read when Params
// does not name any
var DefaultExtensions = []string{".dcm"}

// Params holds the reconstruction parameters.
type Params struct {
	// InputDir is the series directory containing the slice files.
	// Only files directly inside it are read.
	InputDir string

	// NumCores specifies how many goroutines decode slice files.
	// Values below 1 mean a single goroutine.
	NumCores int

	// Extensions lists the file extensions (case-insensitive) treated as
	// slices. Defaults to DefaultExtensions.
	Extensions []string
}

// Reconstructor loads the slices of a series, orders them by their
// embedded position and stacks them into a Volume.
//
// The reconstruction process consists of:
// 1. Listing and decoding the slice files
// 2. Sorting slices by instance number (or slice location)
// 3. Checking that every slice has the same geometry
// 4. Stacking slices into a [row, column, slice] volume
// 5. Extracting descriptive SeriesInfo
type Reconstructor struct {
	// params stores the reconstruction configuration
	params *Params

	// slices holds the decoded slices in anatomical order
	slices []*models.Slice

	// volume is the stacked result
	volume *models.Volume

	// info is the descriptive metadata of the series
	info models.SeriesInfo
}

// NewReconstructor creates a new reconstructor instance with the provided parameters.
func NewReconstructor(params *Params) *Reconstructor {
	return &Reconstructor{
		params: params,
	}
}

// Reconstruct is a convenience wrapper running a full reconstruction of
// dir with default parameters
func Reconstruct(dir string) (*models.Volume, models.SeriesInfo, error) {
	r := NewReconstructor(&Params{InputDir: dir, NumCores: 1})
	if err := r.Process(); err != nil {
		return nil, models.SeriesInfo{}, err
	}
	return r.Volume(), r.Info(), nil
}

// Process runs the complete reconstruction pipeline
func (r *Reconstructor) Process() error {
	files, err := ListSliceFiles(r.params.InputDir, r.extensions())
	if err != nil {
		return err
	}
	if len(files) < 2 {
		return fmt.Errorf("%w: found %d in %s", ErrTooFewSlices, len(files), r.params.InputDir)
	}

	slog.Debug("Loading slices", "dir", r.params.InputDir, "files", len(files))
	if err := r.loadSlices(files); err != nil {
		return err
	}

	r.sortSlices()

	if err := r.checkGeometry(); err != nil {
		return err
	}

	r.stack()
	r.extractInfo()

	slog.Info("Reconstructed volume",
		"dir", r.params.InputDir,
		"rows", r.volume.Rows,
		"cols", r.volume.Cols,
		"slices", r.volume.Depth)

	return nil
}

// Volume returns the stacked volume; nil before Process succeeds
func (r *Reconstructor) Volume() *models.Volume {
	return r.volume
}

// Info returns the series metadata extracted by Process
func (r *Reconstructor) Info() models.SeriesInfo {
	return r.info
}

// Slices returns the decoded slices in the order they were stacked
func (r *Reconstructor) Slices() []*models.Slice {
	return r.slices
}

func (r *Reconstructor) extensions() []string {
	if len(r.params.Extensions) == 0 {
		return DefaultExtensions
	}
	return r.params.Extensions
}

// ListSliceFiles returns the files directly inside dir whose extension
// matches one of exts, sorted by name
func ListSliceFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read series directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if HasSliceExtension(entry.Name(), exts) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// HasSliceExtension reports whether name ends with one of exts, ignoring case
func HasSliceExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// loadSlices decodes every file, spreading the work over NumCores
// goroutines. Results keep the input order; the first failing file (by
// position) is reported.
func (r *Reconstructor) loadSlices(files []string) error {
	numCores := r.params.NumCores
	if numCores < 1 {
		numCores = 1
	}
	if numCores > len(files) {
		numCores = len(files)
	}

	slices := make([]*models.Slice, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	filesPerCore := (len(files) + numCores - 1) / numCores

	for c := 0; c < numCores; c++ {
		start := c * filesPerCore
		end := start + filesPerCore
		if end > len(files) {
			end = len(files)
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				slices[i], errs[i] = loadSlice(files[i])
			}
		}(start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	r.slices = slices
	return nil
}

// sortSlices orders slices by their embedded position. Slices without
// any ordering attribute sort after those with one; ties keep file name
// order so the result is deterministic.
func (r *Reconstructor) sortSlices() {
	sort.SliceStable(r.slices, func(i, j int) bool {
		a, b := r.slices[i], r.slices[j]
		if a.HasOrder != b.HasOrder {
			return a.HasOrder
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Path < b.Path
	})
}

// checkGeometry rejects series whose slices differ in rows or columns
func (r *Reconstructor) checkGeometry() error {
	first := r.slices[0]
	for _, s := range r.slices[1:] {
		if s.Rows != first.Rows || s.Cols != first.Cols {
			return fmt.Errorf("%w: %s is %dx%d, %s is %dx%d",
				ErrInconsistentGeometry,
				filepath.Base(s.Path), s.Rows, s.Cols,
				filepath.Base(first.Path), first.Rows, first.Cols)
		}
	}
	return nil
}

// stack copies the ordered slices into a [row, column, slice] volume
func (r *Reconstructor) stack() {
	rows, cols := r.slices[0].Rows, r.slices[0].Cols
	vol := models.NewVolume(rows, cols, len(r.slices))

	for z, s := range r.slices {
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				vol.Set(y, x, z, s.Pixels[y*cols+x])
			}
		}
	}

	r.volume = vol
}

// extractInfo reads the descriptive attributes of the first slice and
// adds the shape and intensity statistics of the volume
func (r *Reconstructor) extractInfo() {
	info := models.NewSeriesInfo()

	first := r.slices[0]
	for _, it := range infoTags {
		if v, ok := first.Attributes[it.keyword]; ok {
			info.Add(it.keyword, v)
		}
	}

	info.Add("Rows", strconv.Itoa(r.volume.Rows))
	info.Add("Columns", strconv.Itoa(r.volume.Cols))
	info.Add("Slices", strconv.Itoa(r.volume.Depth))

	mean, std := stat.MeanStdDev(r.volume.Data, nil)
	info.Add("Min", formatFloat(floats.Min(r.volume.Data)))
	info.Add("Max", formatFloat(floats.Max(r.volume.Data)))
	info.Add("Mean", formatFloat(mean))
	info.Add("StdDev", formatFloat(std))

	r.info = info
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
