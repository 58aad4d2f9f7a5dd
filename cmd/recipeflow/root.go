package main

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"recipeflow/internal/app"
	"recipeflow/internal/config"
	"recipeflow/internal/observability"
	"recipeflow/internal/pipeline"
)

type pipelineRunner interface {
	Run(ctx context.Context, videoURL string) pipeline.Result
}

// commandContext carries state shared by subcommands. buildRunner is
// replaced in tests.
type commandContext struct {
	logLevel    string
	cfg         *config.Config
	buildRunner func(cfg config.Config, logger *slog.Logger) pipelineRunner
}

func newCommandContext() *commandContext {
	return &commandContext{
		buildRunner: func(cfg config.Config, logger *slog.Logger) pipelineRunner {
			return app.Build(cfg, logger, observability.NewMetrics()).Pipeline
		},
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if level := strings.TrimSpace(c.logLevel); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	c.cfg = &cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	return newRootCommandWithContext(newCommandContext())
}

func newRootCommandWithContext(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "recipeflow",
		Short:         "Turn cooking videos into structured recipes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd == cmd.Root() {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))

	return rootCmd
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel}))
}
