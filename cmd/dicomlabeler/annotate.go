package main

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/spf13/cobra"

	"dicomlabeler/pkg/annotation"
	"dicomlabeler/pkg/discovery"
)

func newAnnotateCmd(a *app) *cobra.Command {
	var (
		seriesName string
		anomaly    string
		slices     string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "annotate <studyDir>",
		Short: "Record the anomaly and slice ranges of a series in an annotation file",
		Example: `  # Label a series, creating Annotation.json if needed
  dicomlabeler annotate ./data/study --series CT_HEAD --anomaly Fracture --slices "0-11; 57-59;"

  # Update only the slice ranges of an existing record
  dicomlabeler annotate ./data/study --series CT_HEAD --slices "0-14;" --file labels.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := discovery.Discover(args[0], a.cfg.Ingest.SliceExtensions)
			if err != nil {
				return err
			}
			if _, ok := discovery.Find(found, seriesName); !ok {
				return fmt.Errorf("%w: %s", annotation.ErrUnknownSeries, seriesName)
			}

			doc, err := annotation.LoadDocument(file)
			if errors.Is(err, fs.ErrNotExist) {
				doc = annotation.Document{}
			} else if err != nil {
				return err
			}

			// existing records keep a stable name order in the rewritten file
			names := make([]string, 0, len(doc))
			for name := range doc {
				names = append(names, name)
			}
			sort.Strings(names)

			store := annotation.NewStore()
			for _, name := range names {
				store.Put(name, doc[name])
			}

			action := "Updated"
			if !store.Has(seriesName) {
				action = "Created"
				store.Seed([]string{seriesName})
			}
			if cmd.Flags().Changed("anomaly") {
				if err := store.Set(seriesName, annotation.FieldAnomaly, anomaly); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("slices") {
				if err := store.Set(seriesName, annotation.FieldSlices, slices); err != nil {
					return err
				}
			}

			out, err := store.Export(store.Names())
			if err != nil {
				return err
			}
			if err := annotation.SaveDocument(file, out); err != nil {
				return err
			}

			rec := out[seriesName]
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s in %s: Anomaly=%q Slices=%q\n", action, seriesName, file, rec.Anomaly, rec.Slices)
			return nil
		},
	}

	cmd.Flags().StringVarP(&seriesName, "series", "s", "", "Series name as listed by the series command")
	cmd.Flags().StringVar(&anomaly, "anomaly", "", "Anomaly label")
	cmd.Flags().StringVar(&slices, "slices", "", `Slice ranges, e.g. "0-11; 57-59;"`)
	cmd.Flags().StringVarP(&file, "file", "f", annotation.ExportFileName, "Annotation file to update")
	_ = cmd.MarkFlagRequired("series")

	return cmd
}
