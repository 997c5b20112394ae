// Package discovery finds the scan series below an extracted archive.
package discovery

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"dicomlabeler/internal/models"
	"dicomlabeler/pkg/reconstruction"
)

const (
	// MinSlices is the smallest number of slice files a folder needs to
	// count as a series
	MinSlices = 2

	// RootName names the series whose files sit directly in the root
	RootName = "."
)

// Discover walks root and returns one Series per directory holding at
// least MinSlices slice files directly inside it, ordered by path.
// A series is named after its folder; when two folders share a name the
// slash separated path relative to root is used for both instead. Files
// directly inside root form the series RootName.
func Discover(root string, exts []string) ([]models.Series, error) {
	if len(exts) == 0 {
		exts = reconstruction.DefaultExtensions
	}

	var found []models.Series
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		files, err := reconstruction.ListSliceFiles(path, exts)
		if err != nil {
			return err
		}
		if len(files) < MinSlices {
			return nil
		}

		found = append(found, models.Series{Dir: path, Files: files})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].Dir < found[j].Dir
	})

	nameSeries(root, found)

	slog.Debug("Discovered series", "root", root, "count", len(found))
	return found, nil
}

// ValidFolders returns the directories of the series found below root
func ValidFolders(root string, exts []string) ([]string, error) {
	series, err := Discover(root, exts)
	if err != nil {
		return nil, err
	}

	dirs := make([]string, len(series))
	for i, s := range series {
		dirs[i] = s.Dir
	}
	return dirs, nil
}

func nameSeries(root string, series []models.Series) {
	root = filepath.Clean(root)

	counts := make(map[string]int)
	for _, s := range series {
		if filepath.Clean(s.Dir) != root {
			counts[filepath.Base(s.Dir)]++
		}
	}

	for i := range series {
		if filepath.Clean(series[i].Dir) == root {
			series[i].Name = RootName
			continue
		}

		name := filepath.Base(series[i].Dir)
		if counts[name] > 1 {
			if rel, err := filepath.Rel(root, series[i].Dir); err == nil {
				name = filepath.ToSlash(rel)
			}
		}
		series[i].Name = name
	}
}

// Find returns the series with the given display name
func Find(series []models.Series, name string) (models.Series, bool) {
	for _, s := range series {
		if s.Name == name {
			return s, true
		}
	}
	return models.Series{}, false
}
