package session

import (
	"context"
	"fmt"
	"io"
	"os"

	"dicomlabeler/internal/models"
	"dicomlabeler/pkg/ingest"
	"dicomlabeler/pkg/visualization"
)

// Event is one user interaction. Events are applied with Session.Apply.
type Event interface {
	apply(ctx context.Context, s *Session) error
}

// LoadArchive extracts an uploaded zip archive and discovers its series.
// The first series becomes the selection.
type LoadArchive struct {
	Reader io.ReaderAt
	Size   int64
}

// LoadURL downloads a zip archive and loads it like LoadArchive
type LoadURL struct {
	URL string
}

// LoadDemo loads the configured demo archive
type LoadDemo struct{}

// SelectSeries changes the series being viewed
type SelectSeries struct {
	Name string
}

// SetSliceIndex moves the slice slider. The index is clamped to the axial
// extent of the selected volume.
type SetSliceIndex struct {
	Index int
}

// SetThreshold moves the threshold slider (0-100)
type SetThreshold struct {
	Percent float64
}

// SetAnnotation changes one field of a series' annotation. An empty
// Series means the selected series.
type SetAnnotation struct {
	Series string
	Field  string
	Value  string
}

// Reset clears all data, annotations and scratch directories
type Reset struct{}

func (e LoadArchive) apply(ctx context.Context, s *Session) error {
	if len(s.series) > 0 {
		return ErrAlreadyLoaded
	}

	return ingestArchive(s, e.Reader, e.Size)
}

func (e LoadURL) apply(ctx context.Context, s *Session) error {
	if len(s.series) > 0 {
		return ErrAlreadyLoaded
	}

	path, err := s.fetcher.Download(ctx, e.URL, s.tempDir)
	if err != nil {
		return err
	}

	if err := ingestFile(s, path); err != nil {
		os.RemoveAll(s.tempDir)
		return err
	}
	return nil
}

// ingestFile ingests a staged archive on disk
func ingestFile(s *Session, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	return ingestArchive(s, file, stat.Size())
}

func (e LoadDemo) apply(ctx context.Context, s *Session) error {
	if s.cfg.Ingest.DemoURL == "" {
		return ErrNoDemo
	}
	return LoadURL{URL: s.cfg.Ingest.DemoURL}.apply(ctx, s)
}

// ingestArchive extracts into the data directory and discovers series.
// On failure the data directory is removed so no state changes.
func ingestArchive(s *Session, r io.ReaderAt, size int64) error {
	if r == nil {
		return fmt.Errorf("%w: no archive given", ingest.ErrInvalidArchive)
	}

	_, err := ingest.ExtractArchive(r, size, s.dataDir, s.ingestOptions())
	if err == nil {
		err = s.ingestDir()
	}
	if err != nil {
		os.RemoveAll(s.dataDir)
		return err
	}
	return nil
}

func (e SelectSeries) apply(ctx context.Context, s *Session) error {
	series, err := s.lookup(e.Name)
	if err != nil {
		return err
	}
	if series.Name != s.selected {
		s.selectSeries(series)
	}
	_, err = s.ensureVolume()
	return err
}

func (e SetSliceIndex) apply(ctx context.Context, s *Session) error {
	vol, err := s.ensureVolume()
	if err != nil {
		return err
	}
	s.index = visualization.NewViewer(vol).Clamp(models.Axial, e.Index)
	return nil
}

func (e SetThreshold) apply(ctx context.Context, s *Session) error {
	s.threshold = visualization.ClampPercent(e.Percent)
	return nil
}

func (e SetAnnotation) apply(ctx context.Context, s *Session) error {
	name := e.Series
	if name == "" {
		name = s.selected
	}
	if _, err := s.lookup(name); err != nil {
		return err
	}
	return s.annotations.Set(name, e.Field, e.Value)
}

func (e Reset) apply(ctx context.Context, s *Session) error {
	return s.clear()
}
