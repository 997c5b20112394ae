// Package ingest validates and expands uploaded or downloaded archives of
// slice files into a scratch directory.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	// DefaultMaxBytes is the archive size limit used when none is configured
	DefaultMaxBytes int64 = 100 << 20

	// DefaultMaxExtractedBytes bounds the total size written by one
	// extraction when none is configured
	DefaultMaxExtractedBytes int64 = 1 << 30
)

var (
	// ErrInvalidArchive is returned for input that is not a zip archive or
	// that holds no slice files
	ErrInvalidArchive = errors.New("invalid archive")

	// ErrArchiveTooLarge is returned when an archive exceeds the size limit
	ErrArchiveTooLarge = errors.New("archive too large")
)

// Options controls archive validation and extraction
type Options struct {
	// MaxBytes is the largest accepted archive. Zero means DefaultMaxBytes.
	MaxBytes int64

	// MaxExtractedBytes is the largest total size of the extracted files.
	// Zero means DefaultMaxExtractedBytes.
	MaxExtractedBytes int64

	// Extensions lists the slice file extensions, e.g. ".dcm"
	Extensions []string
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return o.MaxBytes
}

func (o Options) maxExtractedBytes() int64 {
	if o.MaxExtractedBytes <= 0 {
		return DefaultMaxExtractedBytes
	}
	return o.MaxExtractedBytes
}

func (o Options) extensions() []string {
	if len(o.Extensions) == 0 {
		return []string{".dcm"}
	}
	return o.Extensions
}

// Open checks the size limit and reads the zip directory
func Open(r io.ReaderAt, size int64, opts Options) (*zip.Reader, error) {
	if size > opts.maxBytes() {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrArchiveTooLarge, size, opts.maxBytes())
	}

	// entry paths are checked on extraction, so an insecure path is not
	// fatal here
	zr, err := zip.NewReader(r, size)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	return zr, nil
}

// ContainsSlices reports whether any entry of the archive, at any depth,
// is a slice file. Entries inside nested archives are not considered.
func ContainsSlices(zr *zip.Reader, exts []string) bool {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if matchesExtension(f.Name, exts) {
			return true
		}
	}
	return false
}

// extractable reports whether an entry is written by Extract
func extractable(f *zip.File) bool {
	return !f.FileInfo().IsDir() && !strings.EqualFold(path.Ext(f.Name), ".zip")
}

// ExtractedSize returns the declared uncompressed size of the entries
// Extract would write
func ExtractedSize(zr *zip.Reader) uint64 {
	var total uint64
	for _, f := range zr.File {
		if extractable(f) {
			total += f.UncompressedSize64
		}
	}
	return total
}

// Extract writes every regular entry of zr below dest and returns the
// number of files written. Nested .zip entries are skipped. Entries that
// would land outside dest are rejected. At most limit bytes are written
// in total, whatever the entry headers declare.
func Extract(zr *zip.Reader, dest string, limit int64) (int, error) {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	written := 0
	remaining := limit
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !extractable(f) {
			slog.Debug("Skipping nested archive", "entry", f.Name)
			continue
		}

		target, err := entryPath(root, f.Name)
		if err != nil {
			return written, err
		}
		n, err := extractFile(f, target, remaining)
		if err != nil {
			return written, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		remaining -= n
		written++
	}

	return written, nil
}

// ExtractArchive validates an archive held in r and expands it into dest.
// Nothing is written when validation fails.
func ExtractArchive(r io.ReaderAt, size int64, dest string, opts Options) (int, error) {
	zr, err := Open(r, size, opts)
	if err != nil {
		return 0, err
	}
	if !ContainsSlices(zr, opts.extensions()) {
		return 0, fmt.Errorf("%w: no %s files found", ErrInvalidArchive, strings.Join(opts.extensions(), ", "))
	}

	limit := opts.maxExtractedBytes()
	if total := ExtractedSize(zr); total > uint64(limit) {
		return 0, fmt.Errorf("%w: %d bytes uncompressed, limit %d", ErrArchiveTooLarge, total, limit)
	}

	n, err := Extract(zr, dest, limit)
	if err != nil {
		return n, err
	}

	slog.Info("Extracted archive", "dest", dest, "files", n)
	return n, nil
}

// ExtractFile is ExtractArchive for an archive on disk
func ExtractFile(archivePath, dest string, opts Options) (int, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return ExtractArchive(file, stat.Size(), dest, opts)
}

// entryPath maps an archive entry name below root, rejecting absolute
// names and parent traversal
func entryPath(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %q escapes the extraction directory", ErrInvalidArchive, name)
	}

	target := filepath.Join(root, clean)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %q escapes the extraction directory", ErrInvalidArchive, name)
	}
	return target, nil
}

// extractFile writes one entry and returns its size. Writing more than
// budget bytes fails with ErrArchiveTooLarge.
func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if err == nil && n > budget {
		err = fmt.Errorf("%w: extracted data exceeds %d bytes", ErrArchiveTooLarge, budget)
	}
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}

func matchesExtension(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
