package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dicomlabeler/internal/models"
	"dicomlabeler/pkg/reconstruction"
	"dicomlabeler/pkg/visualization"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		axisName  string
		index     int
		threshold float64
		out       string
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "render <seriesDir>",
		Short: "Write a thresholded view of a series as PNG",
		Example: `  # Middle axial slice at the default threshold
  dicomlabeler render ./data/study/CT_HEAD

  # Coronal slice 120 at 70%
  dicomlabeler render ./data/study/CT_HEAD --axis coronal --index 120 --threshold 70 --out coronal.png

  # Every sagittal slice into a directory
  dicomlabeler render ./data/study/CT_HEAD --axis sagittal --all --out sagittal/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis, err := models.ParseAxis(axisName)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.Viewer.DefaultThreshold
			}

			r := reconstruction.NewReconstructor(&reconstruction.Params{
				InputDir:   args[0],
				NumCores:   a.cfg.Processing.NumCores,
				Extensions: a.cfg.Ingest.SliceExtensions,
			})
			if err := r.Process(); err != nil {
				return err
			}
			viewer := visualization.NewViewer(r.Volume())

			if all {
				if out == "" {
					out = "slices_" + axis.String()
				}
				if err := viewer.SaveSliceSequence(axis, out, threshold); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d %s slices to %s\n", viewer.Extent(axis), axis, out)
				return nil
			}

			if !cmd.Flags().Changed("index") {
				index = viewer.DefaultIndex()
			}
			view, err := viewer.Reslice(axis, viewer.Clamp(axis, index), threshold)
			if err != nil {
				return err
			}

			if out == "" {
				out = fmt.Sprintf("slice_%s_%03d.png", axis, view.Index)
			}
			if err := viewer.SaveSlice(view, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s slice %d to %s\n", axis, view.Index, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&axisName, "axis", "axial", "Viewing plane: axial, coronal or sagittal")
	cmd.Flags().IntVar(&index, "index", 0, "Slice index (default: middle of the series)")
	cmd.Flags().Float64Var(&threshold, "threshold", 50, "Threshold percentage 0-100 (default: viewer.defaultThreshold)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output PNG file, or directory with --all")
	cmd.Flags().BoolVar(&all, "all", false, "Write every slice of the axis")

	return cmd
}
