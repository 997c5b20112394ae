package session

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"dicomlabeler/internal/dicomtest"
	"dicomlabeler/internal/models"
	"dicomlabeler/pkg/annotation"
	"dicomlabeler/pkg/config"
	"dicomlabeler/pkg/ingest"
	"dicomlabeler/pkg/reconstruction"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Storage.TempZipDir = filepath.Join(t.TempDir(), "temp")
	cfg.Processing.NumCores = 2
	return cfg
}

// buildArchive lays out series folders under a temp dir and zips them
func buildArchive(t *testing.T, series map[string]int, rows, cols int) []byte {
	t.Helper()
	root := t.TempDir()
	for name, n := range series {
		if _, err := dicomtest.WriteSeries(filepath.Join(root, "study", name), n, rows, cols, func(slice, row, col int) int16 {
			return int16(slice*100 + row*10 + col)
		}); err != nil {
			t.Fatalf("Failed to write series %s: %v", name, err)
		}
	}
	data, err := dicomtest.ArchiveDir(root)
	if err != nil {
		t.Fatalf("Failed to zip fixtures: %v", err)
	}
	return data
}

func loadedSession(t *testing.T) *Session {
	t.Helper()
	m := New(testConfig(t))
	s := m.Create()

	data := buildArchive(t, map[string]int{"CT_A": 4, "CT_B": 3}, 6, 5)
	if err := s.Apply(context.Background(), LoadArchive{Reader: bytes.NewReader(data), Size: int64(len(data))}); err != nil {
		t.Fatalf("LoadArchive failed: %v", err)
	}
	return s
}

func TestLoadArchive(t *testing.T) {
	s := loadedSession(t)

	snap := s.Snapshot()
	if !snap.Loaded {
		t.Fatal("Expected session to be loaded")
	}
	if !reflect.DeepEqual(snap.Series, []string{"CT_A", "CT_B"}) {
		t.Errorf("Expected series [CT_A CT_B], got %v", snap.Series)
	}
	if snap.Selected != "CT_A" {
		t.Errorf("Expected first series selected, got %q", snap.Selected)
	}
	if snap.Index != 1 || snap.Depth != 4 {
		t.Errorf("Expected index 1 of depth 4, got %d of %d", snap.Index, snap.Depth)
	}
	if snap.Threshold != 50 {
		t.Errorf("Expected default threshold 50, got %g", snap.Threshold)
	}

	for _, name := range snap.Series {
		rec, err := s.Annotation(name)
		if err != nil {
			t.Fatal(err)
		}
		if rec != models.DefaultAnnotation() {
			t.Errorf("Expected default annotation for %s, got %+v", name, rec)
		}
	}

	vol, err := s.Volume()
	if err != nil {
		t.Fatalf("Volume failed: %v", err)
	}
	if r, c, d := vol.Shape(); r != 6 || c != 5 || d != 4 {
		t.Errorf("Expected shape (6,5,4), got (%d,%d,%d)", r, c, d)
	}

	again, _ := s.Volume()
	if again != vol {
		t.Error("Expected the cached volume to be reused")
	}

	data := buildArchive(t, map[string]int{"OTHER": 2}, 2, 2)
	err = s.Apply(context.Background(), LoadArchive{Reader: bytes.NewReader(data), Size: int64(len(data))})
	if !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Expected ErrAlreadyLoaded, got %v", err)
	}
}

func TestLoadInvalidArchive(t *testing.T) {
	m := New(testConfig(t))
	s := m.Create()

	tests := []struct {
		name string
		data []byte
	}{
		{"NotAZip", []byte("garbage")},
		{"NoSeries", buildArchive(t, map[string]int{"SINGLE": 1}, 2, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Apply(context.Background(), LoadArchive{Reader: bytes.NewReader(tt.data), Size: int64(len(tt.data))})
			if !errors.Is(err, ingest.ErrInvalidArchive) {
				t.Errorf("Expected ErrInvalidArchive, got %v", err)
			}
			if s.Snapshot().Loaded {
				t.Error("Expected no state change")
			}
			if _, err := os.Stat(s.DataDir()); !os.IsNotExist(err) {
				t.Error("Expected data directory to be removed")
			}
		})
	}
}

func TestSelectSeries(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()

	if err := s.Apply(ctx, SetSliceIndex{Index: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(ctx, SelectSeries{Name: "CT_B"}); err != nil {
		t.Fatalf("SelectSeries failed: %v", err)
	}

	snap := s.Snapshot()
	if snap.Selected != "CT_B" || snap.Index != 1 || snap.Depth != 3 {
		t.Errorf("Expected CT_B at index 1 of 3, got %s at %d of %d", snap.Selected, snap.Index, snap.Depth)
	}

	vol, err := s.Volume()
	if err != nil {
		t.Fatal(err)
	}
	if vol.Depth != 3 {
		t.Errorf("Expected volume of CT_B, got depth %d", vol.Depth)
	}

	if err := s.Apply(ctx, SelectSeries{Name: "CT_Z"}); !errors.Is(err, ErrUnknownSeries) {
		t.Errorf("Expected ErrUnknownSeries, got %v", err)
	}
}

func TestSliders(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()

	tests := []struct {
		event     Event
		index     int
		threshold float64
	}{
		{SetSliceIndex{Index: 2}, 2, 50},
		{SetSliceIndex{Index: 99}, 3, 50},
		{SetSliceIndex{Index: -4}, 0, 50},
		{SetThreshold{Percent: 80}, 0, 80},
		{SetThreshold{Percent: 140}, 0, 100},
		{SetThreshold{Percent: -1}, 0, 0},
	}

	for _, tt := range tests {
		if err := s.Apply(ctx, tt.event); err != nil {
			t.Fatalf("%T failed: %v", tt.event, err)
		}
		snap := s.Snapshot()
		if snap.Index != tt.index || snap.Threshold != tt.threshold {
			t.Errorf("After %+v: expected index %d threshold %g, got %d and %g",
				tt.event, tt.index, tt.threshold, snap.Index, snap.Threshold)
		}
	}
}

func TestViews(t *testing.T) {
	s := loadedSession(t)

	views, err := s.Views()
	if err != nil {
		t.Fatalf("Views failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("Expected 3 views, got %d", len(views))
	}
	for _, view := range views {
		wantCols := 6
		if view.Axis == models.Axial {
			wantCols = 5
		}
		if view.Rows != 6 || view.Cols != wantCols {
			t.Errorf("Expected %s view 6x%d, got %dx%d", view.Axis, wantCols, view.Rows, view.Cols)
		}
	}

	view, err := s.View(models.Sagittal)
	if err != nil {
		t.Fatal(err)
	}
	if view.Axis != models.Sagittal || view.Index != 1 {
		t.Errorf("Expected sagittal view at 1, got %s at %d", view.Axis, view.Index)
	}
}

func TestAnnotations(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()

	if err := s.Apply(ctx, SetAnnotation{Field: annotation.FieldSlices, Value: "0-2;"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(ctx, SetAnnotation{Series: "CT_B", Field: annotation.FieldAnomaly, Value: "Tumor"}); err != nil {
		t.Fatal(err)
	}

	if err := s.Apply(ctx, SetAnnotation{Series: "CT_B", Field: "Grade", Value: "2"}); !errors.Is(err, annotation.ErrUnknownField) {
		t.Errorf("Expected ErrUnknownField, got %v", err)
	}
	if err := s.Apply(ctx, SetAnnotation{Series: "CT_Z", Field: annotation.FieldAnomaly}); !errors.Is(err, ErrUnknownSeries) {
		t.Errorf("Expected ErrUnknownSeries, got %v", err)
	}

	doc, err := s.Export(nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	want := annotation.Document{
		"CT_A": {Anomaly: "Bleeding", Slices: "0-2;"},
		"CT_B": {Anomaly: "Tumor"},
	}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("Expected %+v, got %+v", want, doc)
	}

	doc, err = s.Export([]string{"CT_B"})
	if err != nil || len(doc) != 1 {
		t.Errorf("Expected only CT_B, got %+v, %v", doc, err)
	}

	if _, err := s.Export([]string{"CT_Z"}); !errors.Is(err, ErrUnknownSeries) {
		t.Errorf("Expected ErrUnknownSeries, got %v", err)
	}
}

func TestReset(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()

	if _, err := os.Stat(s.DataDir()); err != nil {
		t.Fatalf("Expected data directory after load: %v", err)
	}

	if err := s.Apply(ctx, Reset{}); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if _, err := os.Stat(s.DataDir()); !os.IsNotExist(err) {
		t.Error("Expected data directory to be removed")
	}
	if s.Snapshot().Loaded {
		t.Error("Expected session to be empty")
	}
	if _, err := s.Export(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
	if _, err := s.Volume(); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
	if err := s.Apply(ctx, SetSliceIndex{Index: 1}); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}

	data := buildArchive(t, map[string]int{"NEW": 2}, 3, 3)
	if err := s.Apply(ctx, LoadArchive{Reader: bytes.NewReader(data), Size: int64(len(data))}); err != nil {
		t.Fatalf("Expected load after reset to succeed: %v", err)
	}
	if rec, _ := s.Annotation("NEW"); rec != models.DefaultAnnotation() {
		t.Errorf("Expected fresh annotations, got %+v", rec)
	}
}

// TestUnreadableSeriesIsolated verifies that a broken series does not
// prevent viewing the others
func TestUnreadableSeriesIsolated(t *testing.T) {
	root := t.TempDir()
	if _, err := dicomtest.WriteSeries(filepath.Join(root, "GOOD"), 2, 2, 2, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := dicomtest.WriteSeries(filepath.Join(root, "BAD"), 1, 2, 2, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "BAD", "broken.dcm"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	data, err := dicomtest.ArchiveDir(root)
	if err != nil {
		t.Fatal(err)
	}

	s := New(testConfig(t)).Create()
	ctx := context.Background()
	if err := s.Apply(ctx, LoadArchive{Reader: bytes.NewReader(data), Size: int64(len(data))}); err != nil {
		t.Fatalf("LoadArchive failed: %v", err)
	}

	if _, err := s.Volume(); !errors.Is(err, reconstruction.ErrUnreadableSlice) {
		t.Errorf("Expected ErrUnreadableSlice for BAD, got %v", err)
	}
	if err := s.Apply(ctx, SelectSeries{Name: "GOOD"}); err != nil {
		t.Errorf("Expected GOOD to remain selectable, got %v", err)
	}
	if _, err := s.Views(); err != nil {
		t.Errorf("Expected views of GOOD, got %v", err)
	}
}

func TestLoadURL(t *testing.T) {
	payload := buildArchive(t, map[string]int{"REMOTE": 3}, 4, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/demo.zip":
			w.Write(payload)
		case "/notes.zip":
			w.Write([]byte("plain text, not an archive"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.Ingest.DemoURL = server.URL + "/demo.zip"
	m := New(cfg)
	ctx := context.Background()

	t.Run("Demo", func(t *testing.T) {
		s := m.Create()
		if err := s.Apply(ctx, LoadDemo{}); err != nil {
			t.Fatalf("LoadDemo failed: %v", err)
		}
		if got := s.Snapshot().Series; !reflect.DeepEqual(got, []string{"REMOTE"}) {
			t.Errorf("Expected [REMOTE], got %v", got)
		}
		if _, err := os.Stat(filepath.Join(s.TempDir(), ingest.DownloadName)); err != nil {
			t.Errorf("Expected staged download: %v", err)
		}
	})

	t.Run("Failure", func(t *testing.T) {
		s := m.Create()
		err := s.Apply(ctx, LoadURL{URL: server.URL + "/missing.zip"})
		if !errors.Is(err, ingest.ErrDownloadFailure) {
			t.Errorf("Expected ErrDownloadFailure, got %v", err)
		}
		if s.Snapshot().Loaded {
			t.Error("Expected prior state preserved")
		}
	})

	t.Run("InvalidDownload", func(t *testing.T) {
		s := m.Create()
		err := s.Apply(ctx, LoadURL{URL: server.URL + "/notes.zip"})
		if !errors.Is(err, ingest.ErrInvalidArchive) {
			t.Errorf("Expected ErrInvalidArchive, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(s.TempDir(), ingest.DownloadName)); !os.IsNotExist(err) {
			t.Errorf("Expected staged download removed, got %v", err)
		}
		if _, err := os.Stat(s.DataDir()); !os.IsNotExist(err) {
			t.Errorf("Expected no data directory, got %v", err)
		}
	})

	t.Run("NoDemoConfigured", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Ingest.DemoURL = ""
		s := New(cfg).Create()
		if err := s.Apply(ctx, LoadDemo{}); !errors.Is(err, ErrNoDemo) {
			t.Errorf("Expected ErrNoDemo, got %v", err)
		}
	})
}

// TestEndToEnd runs one series of 10 slices at 512 x 512 through every
// stage up to the three views
func TestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full size pipeline in short mode")
	}

	data := buildArchive(t, map[string]int{"SERIES": 10}, 512, 512)
	s := New(testConfig(t)).Create()
	ctx := context.Background()

	if err := s.Apply(ctx, LoadArchive{Reader: bytes.NewReader(data), Size: int64(len(data))}); err != nil {
		t.Fatalf("LoadArchive failed: %v", err)
	}
	if got := s.Snapshot().Series; len(got) != 1 {
		t.Fatalf("Expected one series, got %v", got)
	}

	vol, err := s.Volume()
	if err != nil {
		t.Fatal(err)
	}
	if r, c, d := vol.Shape(); r != 512 || c != 512 || d != 10 {
		t.Fatalf("Expected shape (512,512,10), got (%d,%d,%d)", r, c, d)
	}

	if err := s.Apply(ctx, SetSliceIndex{Index: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(ctx, SetThreshold{Percent: 50}); err != nil {
		t.Fatal(err)
	}

	views, err := s.Views()
	if err != nil {
		t.Fatalf("Views failed: %v", err)
	}
	for _, view := range views {
		if view.Rows != 512 || view.Cols != 512 {
			t.Errorf("Expected %s view 512x512, got %dx%d", view.Axis, view.Rows, view.Cols)
		}
		for _, p := range view.Pix {
			if p < 0 || p > 1 {
				t.Fatalf("%s view value %g outside [0,1]", view.Axis, p)
			}
		}
	}
}
