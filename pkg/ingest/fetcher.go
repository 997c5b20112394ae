package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrDownloadFailure is returned when a remote archive cannot be retrieved
var ErrDownloadFailure = errors.New("download failed")

// DownloadName is the file name used for staged downloads
const DownloadName = "download.zip"

// Fetcher retrieves archives from remote URLs
type Fetcher struct {
	HTTPClient *http.Client

	// MaxBytes bounds the size of a download. Zero means DefaultMaxBytes.
	MaxBytes int64
}

// NewFetcher creates a fetcher with the given request timeout and size limit
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		MaxBytes: maxBytes,
	}
}

// DirectURL rewrites Google Drive share links to their direct download
// form. Other URLs are returned unchanged.
//
//	https://drive.google.com/file/d/<id>/view?usp=sharing
//	https://drive.google.com/open?id=<id>
//
// both become https://drive.google.com/uc?export=download&id=<id>
func DirectURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !strings.EqualFold(u.Hostname(), "drive.google.com") {
		return raw
	}

	id := u.Query().Get("id")
	if parts := strings.Split(strings.Trim(u.Path, "/"), "/"); len(parts) >= 3 && parts[0] == "file" && parts[1] == "d" {
		id = parts[2]
	}
	if id == "" {
		return raw
	}

	return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id)
}

// Download fetches rawURL into destDir/DownloadName and returns the path
// of the staged file. A failed download leaves nothing behind.
func (f *Fetcher) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	target := DirectURL(rawURL)

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid URL %q", ErrDownloadFailure, rawURL)
	}

	slog.Info("Downloading archive", "url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownloadFailure, err)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownloadFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", ErrDownloadFailure, resp.StatusCode)
	}

	limit := f.maxBytes()
	if resp.ContentLength > limit {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrArchiveTooLarge, resp.ContentLength, limit)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	outputPath := filepath.Join(destDir, DownloadName)
	out, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, limit+1))
	closeErr := out.Close()
	switch {
	case err != nil:
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: %w", ErrDownloadFailure, err)
	case closeErr != nil:
		os.Remove(outputPath)
		return "", closeErr
	case n > limit:
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: more than %d bytes", ErrArchiveTooLarge, limit)
	}

	slog.Info("Downloaded archive", "path", outputPath, "bytes", n)
	return outputPath, nil
}

func (f *Fetcher) client() *http.Client {
	if f.HTTPClient == nil {
		return http.DefaultClient
	}
	return f.HTTPClient
}

func (f *Fetcher) maxBytes() int64 {
	if f.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return f.MaxBytes
}
