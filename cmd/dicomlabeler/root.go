package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dicomlabeler/pkg/config"
)

// app carries state shared by the subcommands
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "dicomlabeler",
		Short: "View DICOM series in three planes and label anomalies",
		Long: `dicomlabeler reconstructs volumes from zip archives of DICOM slices,
renders axial, coronal and sagittal views with an adjustable threshold and
records a free-text anomaly label and slice ranges per series, exported as
Annotation.json.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			a.cfg = cfg

			logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to YAML configuration file")

	cmd.AddCommand(
		newServeCmd(a),
		newSeriesCmd(a),
		newInspectCmd(a),
		newRenderCmd(a),
		newAnnotateCmd(a),
		newConfigCmd(),
	)

	return cmd
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q (must be text or json)", format)
}
