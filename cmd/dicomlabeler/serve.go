package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"dicomlabeler/internal/handlers"
	"dicomlabeler/pkg/session"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the dicomlabeler HTTP API.

Each client creates a session, uploads or fetches a zip archive of DICOM
slices, browses the discovered series and downloads Annotation.json.`,
		Example: `  # Start server on the configured address (default :8501)
  dicomlabeler serve

  # Start server on a custom address
  dicomlabeler serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			sessions := session.New(cfg)
			defer func() {
				if err := sessions.Close(); err != nil {
					slog.Warn("Unable to remove session scratch data", "err", err)
				}
			}()

			mux := http.NewServeMux()
			handlers.New(cfg, sessions).Register(mux)

			server := &http.Server{
				Addr:    cfg.Server.Addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("dicomlabeler API available", "addr", cfg.Server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides server.addr)")

	return cmd
}
