// Package session keeps the state of one viewing session: scratch
// directories, discovered series, the volume of the selected series, the
// slider positions and the annotations. State changes only through events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dicomlabeler/internal/models"
	"dicomlabeler/pkg/annotation"
	"dicomlabeler/pkg/config"
	"dicomlabeler/pkg/discovery"
	"dicomlabeler/pkg/ingest"
	"dicomlabeler/pkg/reconstruction"
	"dicomlabeler/pkg/visualization"
)

var (
	// ErrNoData is returned when an operation needs an ingested archive
	ErrNoData = errors.New("no data loaded")

	// ErrUnknownSeries is returned for a series name that was not discovered
	ErrUnknownSeries = errors.New("unknown series")

	// ErrAlreadyLoaded is returned when an archive is loaded on top of
	// existing data; reset first
	ErrAlreadyLoaded = errors.New("data already loaded")

	// ErrNoDemo is returned by LoadDemo when no demo URL is configured
	ErrNoDemo = errors.New("no demo URL configured")
)

// Snapshot is a read-only summary of a session
type Snapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Loaded    bool      `json:"loaded"`
	Series    []string  `json:"series"`
	Selected  string    `json:"selected,omitempty"`
	Index     int       `json:"index"`
	Threshold float64   `json:"threshold"`
	Depth     int       `json:"depth"`
}

// Session is the state of one user. All methods are safe for concurrent
// use; events are applied one at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg     *config.Config
	fetcher *ingest.Fetcher

	// dataDir holds the expanded archive, tempDir the staged download
	dataDir string
	tempDir string

	mu        sync.Mutex
	series    []models.Series
	selected  string
	index     int
	threshold float64

	// volume and info are cached for volumeOf, the selected series
	volume   *models.Volume
	info     models.SeriesInfo
	volumeOf string

	annotations *annotation.Store
}

func newSession(id string, cfg *config.Config, fetcher *ingest.Fetcher) *Session {
	return &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		cfg:         cfg,
		fetcher:     fetcher,
		dataDir:     filepath.Join(cfg.Storage.DataDir, id),
		tempDir:     filepath.Join(cfg.Storage.TempZipDir, id),
		threshold:   cfg.Viewer.DefaultThreshold,
		annotations: annotation.NewStore(),
	}
}

// Apply processes one event against the session
func (s *Session) Apply(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ev.apply(ctx, s); err != nil {
		slog.Warn("Event failed", "session_id", s.ID, "event", fmt.Sprintf("%T", ev), "err", err)
		return err
	}
	return nil
}

// DataDir returns the directory holding the expanded archive
func (s *Session) DataDir() string {
	return s.dataDir
}

// TempDir returns the directory used to stage downloads
func (s *Session) TempDir() string {
	return s.tempDir
}

// Snapshot returns the current state summary
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.series))
	for i, series := range s.series {
		names[i] = series.Name
	}

	depth := 0
	if s.volume != nil && s.volumeOf == s.selected {
		depth = s.volume.Depth
	} else if sel, ok := discovery.Find(s.series, s.selected); ok {
		depth = len(sel.Files)
	}

	return Snapshot{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Loaded:    len(s.series) > 0,
		Series:    names,
		Selected:  s.selected,
		Index:     s.index,
		Threshold: s.threshold,
		Depth:     depth,
	}
}

// Series returns the discovered series in display order
func (s *Session) Series() []models.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Series(nil), s.series...)
}

// Volume returns the volume of the selected series, reconstructing it on
// first use after the selection changed
func (s *Session) Volume() (*models.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureVolume()
}

// Info returns the SeriesInfo of the selected series
func (s *Session) Info() (models.SeriesInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureVolume(); err != nil {
		return models.SeriesInfo{}, err
	}
	return s.info, nil
}

// Views reslices the selected volume along all three axes at the current
// index and threshold
func (s *Session) Views() ([]*models.SliceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vol, err := s.ensureVolume()
	if err != nil {
		return nil, err
	}
	return visualization.NewViewer(vol).Views(s.index, s.threshold)
}

// View reslices the selected volume along axis at the current index
// (clamped to the axis) and threshold
func (s *Session) View(axis models.Axis) (*models.SliceView, error) {
	s.mu.Lock()
	index, threshold := s.index, s.threshold
	s.mu.Unlock()

	return s.ViewAt(axis, index, threshold)
}

// ViewAt reslices the selected volume along axis at index (clamped to the
// axis) and percent without touching the slider state
func (s *Session) ViewAt(axis models.Axis, index int, percent float64) (*models.SliceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vol, err := s.ensureVolume()
	if err != nil {
		return nil, err
	}
	viewer := visualization.NewViewer(vol)
	return viewer.Reslice(axis, viewer.Clamp(axis, index), percent)
}

// Annotation returns the record of a discovered series
func (s *Session) Annotation(name string) (models.AnnotationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(name); err != nil {
		return models.AnnotationRecord{}, err
	}
	return s.annotations.Get(name), nil
}

// Export returns the annotation document for names; no names means every
// discovered series
func (s *Session) Export(names []string) (annotation.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.series) == 0 {
		return nil, ErrNoData
	}

	if len(names) == 0 {
		for _, series := range s.series {
			names = append(names, series.Name)
		}
	}
	for _, name := range names {
		if _, err := s.lookup(name); err != nil {
			return nil, err
		}
	}
	return s.annotations.Export(names)
}

// Close removes the scratch directories of the session
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clear()
}

// lookup finds a discovered series by name. Callers hold mu.
func (s *Session) lookup(name string) (models.Series, error) {
	if len(s.series) == 0 {
		return models.Series{}, ErrNoData
	}
	series, ok := discovery.Find(s.series, name)
	if !ok {
		return models.Series{}, fmt.Errorf("%w: %s", ErrUnknownSeries, name)
	}
	return series, nil
}

// ensureVolume returns the cached volume of the selected series or
// reconstructs it. A failed reconstruction caches nothing. Callers hold mu.
func (s *Session) ensureVolume() (*models.Volume, error) {
	series, err := s.lookup(s.selected)
	if err != nil {
		return nil, err
	}
	if s.volume != nil && s.volumeOf == series.Name {
		return s.volume, nil
	}

	s.volume, s.info, s.volumeOf = nil, models.SeriesInfo{}, ""

	start := time.Now()
	r := reconstruction.NewReconstructor(&reconstruction.Params{
		InputDir:   series.Dir,
		NumCores:   s.cfg.Processing.NumCores,
		Extensions: s.cfg.Ingest.SliceExtensions,
	})
	if err := r.Process(); err != nil {
		return nil, err
	}

	s.volume, s.info, s.volumeOf = r.Volume(), r.Info(), series.Name
	slog.Info("Volume ready",
		"session_id", s.ID,
		"series", series.Name,
		"slices", s.volume.Depth,
		"elapsed", time.Since(start))

	return s.volume, nil
}

// selectSeries changes the selection, drops the cached volume and moves
// the slice index to the middle of the series. Callers hold mu.
func (s *Session) selectSeries(series models.Series) {
	s.selected = series.Name
	s.volume, s.info, s.volumeOf = nil, models.SeriesInfo{}, ""
	s.index = (len(series.Files) - 1) / 2
}

// ingestDir discovers the series of the expanded archive and seeds their
// annotations. Callers hold mu.
func (s *Session) ingestDir() error {
	found, err := discovery.Discover(s.dataDir, s.cfg.Ingest.SliceExtensions)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: no folder holds %d or more slices", ingest.ErrInvalidArchive, discovery.MinSlices)
	}

	s.series = found
	names := make([]string, len(found))
	for i, series := range found {
		names[i] = series.Name
	}
	s.annotations.Seed(names)
	s.selectSeries(found[0])

	slog.Info("Archive loaded", "session_id", s.ID, "series", len(found))
	return nil
}

// clear removes scratch data and resets every field. Callers hold mu.
func (s *Session) clear() error {
	s.series = nil
	s.selected = ""
	s.index = 0
	s.threshold = s.cfg.Viewer.DefaultThreshold
	s.volume, s.info, s.volumeOf = nil, models.SeriesInfo{}, ""
	s.annotations.Reset()

	return errors.Join(os.RemoveAll(s.dataDir), os.RemoveAll(s.tempDir))
}

func (s *Session) ingestOptions() ingest.Options {
	return ingest.Options{
		MaxBytes:          s.cfg.Ingest.MaxArchiveBytes,
		MaxExtractedBytes: s.cfg.Ingest.MaxExtractedBytes,
		Extensions:        s.cfg.Ingest.SliceExtensions,
	}
}
