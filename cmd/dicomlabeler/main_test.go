package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dicomlabeler/internal/dicomtest"
	"dicomlabeler/pkg/annotation"
	"dicomlabeler/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeStudy(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if _, err := dicomtest.WriteSeries(filepath.Join(root, "CT_HEAD"), 5, 8, 6, func(slice, row, col int) int16 {
		return int16(slice*50 + row + col)
	}); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestSeriesCommand(t *testing.T) {
	root := writeStudy(t)

	out, err := run(t, "series", root)
	if err != nil {
		t.Fatalf("series failed: %v", err)
	}
	if !strings.Contains(out, "CT_HEAD") || !strings.Contains(out, "5 slices") {
		t.Errorf("Unexpected output: %s", out)
	}

	data, err := dicomtest.ArchiveDir(root)
	if err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "study.zip")
	if err := os.WriteFile(archive, data, 0644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "series", archive)
	if err != nil {
		t.Fatalf("series on archive failed: %v", err)
	}
	if !strings.Contains(out, "CT_HEAD") {
		t.Errorf("Expected CT_HEAD in archive listing, got %s", out)
	}

	out, err = run(t, "series", archive, "--dirs")
	if err != nil {
		t.Fatalf("series --dirs failed: %v", err)
	}
	if strings.TrimSpace(out) != "CT_HEAD" {
		t.Errorf("Expected the archive relative dir CT_HEAD, got %q", out)
	}

	out, err = run(t, "series", root, "--dirs")
	if err != nil {
		t.Fatalf("series --dirs on a directory failed: %v", err)
	}
	if strings.TrimSpace(out) != filepath.Join(root, "CT_HEAD") {
		t.Errorf("Expected %s, got %q", filepath.Join(root, "CT_HEAD"), out)
	}
}

func TestInspectCommand(t *testing.T) {
	root := writeStudy(t)

	out, err := run(t, "inspect", filepath.Join(root, "CT_HEAD"))
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(out, "8 x 6 x 5") || !strings.Contains(out, "PatientName") {
		t.Errorf("Unexpected output: %s", out)
	}
	if strings.Contains(out, "IM0001.dcm") {
		t.Errorf("Expected no slice listing without --slices, got %s", out)
	}

	out, err = run(t, "inspect", filepath.Join(root, "CT_HEAD"), "--slices")
	if err != nil {
		t.Fatalf("inspect --slices failed: %v", err)
	}
	// files are named in reverse of their instance numbers
	first, last := strings.Index(out, "IM0005.dcm"), strings.Index(out, "IM0001.dcm")
	if first < 0 || last < 0 || first > last {
		t.Errorf("Expected IM0005.dcm listed before IM0001.dcm, got %s", out)
	}
}

func TestRenderCommand(t *testing.T) {
	series := filepath.Join(writeStudy(t), "CT_HEAD")
	outDir := t.TempDir()

	single := filepath.Join(outDir, "coronal.png")
	if _, err := run(t, "render", series, "--axis", "coronal", "--index", "3", "--out", single); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if _, err := os.Stat(single); err != nil {
		t.Errorf("Expected %s: %v", single, err)
	}

	seq := filepath.Join(outDir, "axial")
	if _, err := run(t, "render", series, "--all", "--out", seq); err != nil {
		t.Fatalf("render --all failed: %v", err)
	}
	entries, err := os.ReadDir(seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Errorf("Expected 5 axial images, got %d", len(entries))
	}

	if _, err := run(t, "render", series, "--axis", "oblique"); err == nil {
		t.Error("Expected error for unknown axis")
	}
}

func TestAnnotateCommand(t *testing.T) {
	root := writeStudy(t)
	file := filepath.Join(t.TempDir(), "Annotation.json")

	if err := annotation.SaveDocument(file, annotation.Document{
		"CT_OLD": {Anomaly: "Tumor", Slices: "3-4;"},
	}); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "annotate", root, "--series", "CT_HEAD", "--anomaly", "Fracture", "--file", file)
	if err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	if !strings.Contains(out, "Created CT_HEAD") {
		t.Errorf("Expected a created record, got %s", out)
	}

	if _, err := run(t, "annotate", root, "-s", "CT_HEAD", "--slices", "0-2;", "--file", file); err != nil {
		t.Fatalf("annotate --slices failed: %v", err)
	}

	doc, err := annotation.LoadDocument(file)
	if err != nil {
		t.Fatal(err)
	}
	if got := doc["CT_HEAD"]; got.Anomaly != "Fracture" || got.Slices != "0-2;" {
		t.Errorf("Expected Fracture/0-2;, got %+v", got)
	}
	if got := doc["CT_OLD"]; got.Anomaly != "Tumor" || got.Slices != "3-4;" {
		t.Errorf("Expected existing record kept, got %+v", got)
	}

	if _, err := run(t, "annotate", root, "--series", "CT_FOOT", "--file", file); !errors.Is(err, annotation.ErrUnknownSeries) {
		t.Errorf("Expected ErrUnknownSeries, got %v", err)
	}
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dicomlabeler.yaml")

	if _, err := run(t, "config", "init", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load written config: %v", err)
	}
	if cfg.Server.Addr != ":8501" {
		t.Errorf("Expected default addr, got %s", cfg.Server.Addr)
	}

	if _, err := run(t, "config", "init", path); err == nil {
		t.Error("Expected error when the file exists")
	}
	if _, err := run(t, "config", "init", path, "--force"); err != nil {
		t.Errorf("Expected --force to overwrite: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("Expected JSON log line, got %s", buf.String())
	}

	if _, err := newLogger(&buf, "loud", "text"); err == nil {
		t.Error("Expected error for invalid level")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("Expected error for invalid format")
	}
}
