package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dicomlabeler/pkg/reconstruction"
)

func newInspectCmd(a *app) *cobra.Command {
	var listSlices bool

	cmd := &cobra.Command{
		Use:   "inspect <seriesDir>",
		Short: "Reconstruct a series and print its shape and attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := reconstruction.NewReconstructor(&reconstruction.Params{
				InputDir:   args[0],
				NumCores:   a.cfg.Processing.NumCores,
				Extensions: a.cfg.Ingest.SliceExtensions,
			})

			start := time.Now()
			if err := r.Process(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			vol := r.Volume()
			fmt.Fprintf(out, "Volume: %d x %d x %d (rows x cols x slices) in %.2fs\n",
				vol.Rows, vol.Cols, vol.Depth, time.Since(start).Seconds())

			info := r.Info()
			for _, key := range info.Keys {
				fmt.Fprintf(out, "  %-20s %s\n", key, info.Values[key])
			}

			if listSlices {
				fmt.Fprintln(out, "Slices in stacking order:")
				for i, sl := range r.Slices() {
					order := "-"
					if sl.HasOrder {
						order = strconv.FormatFloat(sl.Order, 'g', -1, 64)
					}
					fmt.Fprintf(out, "  %4d  %8s  %s\n", i, order, filepath.Base(sl.Path))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&listSlices, "slices", false, "List every slice file with its ordering position")
	return cmd
}
