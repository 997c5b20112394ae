package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dicomlabeler/pkg/discovery"
	"dicomlabeler/pkg/ingest"
)

func newSeriesCmd(a *app) *cobra.Command {
	var dirsOnly bool

	cmd := &cobra.Command{
		Use:   "series <archive.zip|dir>",
		Short: "List the series found in an archive or directory",
		Example: `  dicomlabeler series scans.zip
  dicomlabeler series ./data/study
  dicomlabeler series scans.zip --dirs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]

			stat, err := os.Stat(root)
			if err != nil {
				return err
			}
			if !stat.IsDir() {
				tmp, err := os.MkdirTemp("", "dicomlabeler-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(tmp)

				if _, err := ingest.ExtractFile(root, tmp, ingest.Options{
					MaxBytes:          a.cfg.Ingest.MaxArchiveBytes,
					MaxExtractedBytes: a.cfg.Ingest.MaxExtractedBytes,
					Extensions:        a.cfg.Ingest.SliceExtensions,
				}); err != nil {
					return err
				}
				root = tmp
			}

			if dirsOnly {
				return printFolders(cmd, root, !stat.IsDir(), a.cfg.Ingest.SliceExtensions)
			}

			found, err := discovery.Discover(root, a.cfg.Ingest.SliceExtensions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintf(out, "No series with at least %d %s files\n", discovery.MinSlices, strings.Join(a.cfg.Ingest.SliceExtensions, ", "))
				return nil
			}
			for _, s := range found {
				fmt.Fprintf(out, "%-30s %4d slices  %s\n", s.Name, len(s.Files), s.Dir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dirsOnly, "dirs", false, "Print only the series directories, one per line")
	return cmd
}

// printFolders prints the series directories below root. Directories of an
// extracted archive are printed relative to the archive root.
func printFolders(cmd *cobra.Command, root string, archive bool, exts []string) error {
	dirs, err := discovery.ValidFolders(root, exts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, dir := range dirs {
		if archive {
			rel, err := filepath.Rel(root, dir)
			if err != nil {
				return err
			}
			dir = filepath.ToSlash(rel)
		}
		fmt.Fprintln(out, dir)
	}
	return nil
}
