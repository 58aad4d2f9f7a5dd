// Package app wires configuration into the pipeline and its collaborators.
package app

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"recipeflow/internal/command"
	"recipeflow/internal/config"
	"recipeflow/internal/media"
	"recipeflow/internal/observability"
	"recipeflow/internal/pipeline"
	"recipeflow/internal/recipe"
	"recipeflow/internal/synthesis"
	"recipeflow/internal/transcription"
	"recipeflow/internal/upstream/openai"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Upstream *openai.Client
	Pipeline *pipeline.Service
}

// Build assembles the services for cfg. Passing a nil metrics value disables
// metric collection.
func Build(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) *App {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
	upstream := openai.New(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, upstreamHTTPClient, openai.WithObserver(metrics.ObserveUpstream))

	runner := command.ExecRunner{}
	fetchOpts := []media.Option{media.WithRunner(runner)}
	if isPath(cfg.FFmpegCommand) {
		fetchOpts = append(fetchOpts, media.WithFFmpegLocation(cfg.FFmpegCommand))
	}
	fetcher := media.NewFetcher(cfg.YTDLPCommand, cfg.AudioQuality, fetchOpts...)

	transcriber := transcription.New(newEngine(cfg, upstream, runner))

	synthOpts := synthesis.Options{
		Model:       cfg.RecipeModel,
		Temperature: cfg.RecipeTemperature,
		MaxTokens:   cfg.RecipeMaxTokens,
	}
	if cfg.ValidateIngredientUsage {
		synthOpts.Validator = recipe.CheckIngredientUsage
	}
	synthesizer := synthesis.New(upstream, synthOpts)

	pipeOpts := pipeline.Options{
		Credential:    cfg.UpstreamAPIKey,
		WorkspaceRoot: cfg.WorkspaceRoot,
		Logger:        logger,
	}
	if metrics != nil {
		pipeOpts.Observer = metrics
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Upstream: upstream,
		Pipeline: pipeline.New(fetcher, transcriber, synthesizer, pipeOpts),
	}
}

func newEngine(cfg config.Config, upstream *openai.Client, runner command.Runner) transcription.Engine {
	if cfg.TranscriptionBackend == config.TranscriptionBackendUpstream {
		return transcription.NewUpstreamEngine(upstream, cfg.UpstreamTranscriptionModel)
	}
	return transcription.NewWhisperCPP(cfg.WhisperCommand, cfg.FFmpegCommand, cfg.WhisperModelPath, runner)
}

func isPath(cmd string) bool {
	return strings.ContainsAny(cmd, `/\`)
}
