package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"recipeflow/internal/model"
	"recipeflow/internal/pipeline"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

var errUnparsedRecipe = errors.New("model reply could not be parsed into a recipe")

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var format string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "generate <video-url>",
		Short: "Run the pipeline once and print the recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			resolved, err := resolveFormat(format, out)
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, timeout)
				defer cancel()
			}

			logger := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
			result := ctx.buildRunner(cfg, logger).Run(runCtx, args[0])
			return printResult(cmd, resolved, result)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or table (default: table on a terminal, json otherwise)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long (0 = no limit)")
	return cmd
}

func resolveFormat(flag string, out io.Writer) (string, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "":
		if isTerminal(out) {
			return formatTable, nil
		}
		return formatJSON, nil
	case formatJSON:
		return formatJSON, nil
	case formatTable:
		return formatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q (want %s or %s)", flag, formatJSON, formatTable)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printResult(cmd *cobra.Command, format string, result pipeline.Result) error {
	switch result.Kind {
	case pipeline.KindSuccess:
		if format == formatJSON {
			return writeJSON(cmd, model.RecipeResponse{Success: true, Transcript: result.Transcript, Recipe: *result.Recipe})
		}
		_, err := fmt.Fprint(cmd.OutOrStdout(), renderRecipe(*result.Recipe))
		return err
	case pipeline.KindParseFailure:
		if format == formatJSON {
			if err := writeJSON(cmd, model.RecipeParseFailureResponse{
				Success:     false,
				Error:       result.ParseError,
				RawResponse: result.RawResponse,
				Transcript:  result.Transcript,
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\nRaw model response:\n%s\n", result.ParseError, result.RawResponse)
		}
		return errUnparsedRecipe
	default:
		if err := result.Err(); err != nil {
			return err
		}
		return errors.New("pipeline returned no result")
	}
}
