package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"recipeflow/internal/app"
	"recipeflow/internal/httpapi"
	"recipeflow/internal/observability"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
			metrics := observability.NewMetrics()
			a := app.Build(cfg, logger, metrics)
			if cfg.UpstreamAPIKey == "" {
				logger.Warn("OPENAI_API_KEY is not set; recipe generation will fail until it is configured")
			}

			handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
				Pipeline:       a.Pipeline,
				Upstream:       a.Upstream,
				Metrics:        metrics,
				MetricsHandler: metrics.Handler(),
			})

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       35 * time.Second,
				WriteTimeout:      cfg.ServerWriteTimeout,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", cfg.ListenAddr, "transcription_backend", cfg.TranscriptionBackend)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-cmd.Context().Done():
				logger.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					logger.Error("server exited", "error", err)
				}
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown failed", "error", err)
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
}
