package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"dicomlabeler/internal/dicomtest"
)

func writeSeries(t *testing.T, dir string, n int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := dicomtest.WriteSeries(dir, n, 2, 2, nil); err != nil {
		t.Fatalf("Failed to write series: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, filepath.Join(root, "patient", "CT_HEAD"), 3)
	writeSeries(t, filepath.Join(root, "patient", "CT_NECK"), 2)
	writeSeries(t, filepath.Join(root, "patient", "SCOUT"), 1)
	if err := os.WriteFile(filepath.Join(root, "patient", "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	series, err := Discover(root, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(series) != 2 {
		t.Fatalf("Expected 2 series, got %d: %+v", len(series), series)
	}

	tests := []struct {
		name  string
		files int
	}{
		{"CT_HEAD", 3},
		{"CT_NECK", 2},
	}
	for i, tt := range tests {
		if series[i].Name != tt.name {
			t.Errorf("Series %d: expected name %s, got %s", i, tt.name, series[i].Name)
		}
		if len(series[i].Files) != tt.files {
			t.Errorf("Series %s: expected %d files, got %d", tt.name, tt.files, len(series[i].Files))
		}
		if filepath.Base(series[i].Dir) != tt.name {
			t.Errorf("Series %s: unexpected dir %s", tt.name, series[i].Dir)
		}
	}
}

func TestDiscoverDuplicateNames(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, filepath.Join(root, "a", "SERIES1"), 2)
	writeSeries(t, filepath.Join(root, "b", "SERIES1"), 2)
	writeSeries(t, filepath.Join(root, "b", "SERIES2"), 2)

	series, err := Discover(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a/SERIES1", "b/SERIES1", "SERIES2"}
	if len(series) != len(want) {
		t.Fatalf("Expected %d series, got %d", len(want), len(series))
	}
	for i, name := range want {
		if series[i].Name != name {
			t.Errorf("Expected series %d named %s, got %s", i, name, series[i].Name)
		}
	}

	if _, ok := Find(series, "b/SERIES1"); !ok {
		t.Error("Expected Find to locate b/SERIES1")
	}
	if _, ok := Find(series, "SERIES3"); ok {
		t.Error("Expected Find to miss SERIES3")
	}
}

// TestDiscoverRootSeries verifies that slices kept directly in the root
// get a stable name rather than the name of the scratch directory
func TestDiscoverRootSeries(t *testing.T) {
	root := filepath.Join(t.TempDir(), "3f2a9c7e-session")
	writeSeries(t, root, 3)
	writeSeries(t, filepath.Join(root, "SERIES1"), 2)

	series, err := Discover(root+string(filepath.Separator), nil)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{RootName, "SERIES1"}
	if len(series) != len(want) {
		t.Fatalf("Expected %d series, got %d: %+v", len(want), len(series), series)
	}
	for i, name := range want {
		if series[i].Name != name {
			t.Errorf("Expected series %d named %s, got %s", i, name, series[i].Name)
		}
	}
	if len(series[0].Files) != 3 {
		t.Errorf("Expected 3 files in the root series, got %d", len(series[0].Files))
	}
}

func TestValidFolders(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, filepath.Join(root, "only"), 2)

	dirs, err := ValidFolders(root, []string{".dcm"})
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0] != filepath.Join(root, "only") {
		t.Errorf("Expected [%s], got %v", filepath.Join(root, "only"), dirs)
	}

	empty := t.TempDir()
	dirs, err = ValidFolders(empty, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 0 {
		t.Errorf("Expected no folders, got %v", dirs)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("Expected error for missing root")
	}
}
