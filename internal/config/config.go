package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

const (
	TranscriptionBackendLocal    = "local"
	TranscriptionBackendUpstream = "upstream"
)

type Config struct {
	ListenAddr                 string
	UpstreamBaseURL            string
	UpstreamAPIKey             string
	RecipeModel                string
	RecipeTemperature          float64
	RecipeMaxTokens            int
	TranscriptionBackend       string
	WhisperCommand             string
	WhisperModelPath           string
	FFmpegCommand              string
	UpstreamTranscriptionModel string
	YTDLPCommand               string
	AudioQuality               string
	WorkspaceRoot              string
	RequestTimeout             time.Duration
	ServerWriteTimeout         time.Duration
	MaxConcurrentRuns          int
	CORSAllowedOrigins         []string
	ValidateIngredientUsage    bool
	LogLevel                   string
}

type envConfig struct {
	ListenAddr                 string   `env:"LISTEN_ADDR" envDefault:":8000"`
	UpstreamBaseURL            string   `env:"UPSTREAM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	UpstreamAPIKey             string   `env:"OPENAI_API_KEY"`
	RecipeModel                string   `env:"RECIPE_MODEL" envDefault:"gpt-3.5-turbo"`
	RecipeTemperature          float64  `env:"RECIPE_TEMPERATURE" envDefault:"0.2"`
	RecipeMaxTokens            int      `env:"RECIPE_MAX_TOKENS" envDefault:"1200"`
	TranscriptionBackend       string   `env:"TRANSCRIPTION_BACKEND" envDefault:"local"`
	WhisperCommand             string   `env:"WHISPER_COMMAND" envDefault:"whisper-cli"`
	WhisperModelPath           string   `env:"WHISPER_MODEL_PATH" envDefault:"models/ggml-base.bin"`
	FFmpegCommand              string   `env:"FFMPEG_COMMAND" envDefault:"ffmpeg"`
	UpstreamTranscriptionModel string   `env:"UPSTREAM_TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
	YTDLPCommand               string   `env:"YTDLP_COMMAND" envDefault:"yt-dlp"`
	AudioQuality               string   `env:"AUDIO_QUALITY" envDefault:"192K"`
	WorkspaceRoot              string   `env:"WORKSPACE_ROOT"`
	RequestTimeoutSeconds      int      `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"60"`
	ServerWriteTimeoutSeconds  int      `env:"SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"600"`
	MaxConcurrentRuns          int      `env:"MAX_CONCURRENT_RUNS" envDefault:"2"`
	CORSAllowedOrigins         []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	ValidateIngredientUsage    bool     `env:"VALIDATE_INGREDIENT_USAGE" envDefault:"false"`
	LogLevel                   string   `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:                 strings.TrimSpace(raw.ListenAddr),
		UpstreamBaseURL:            strings.TrimRight(strings.TrimSpace(raw.UpstreamBaseURL), "/"),
		UpstreamAPIKey:             strings.TrimSpace(raw.UpstreamAPIKey),
		RecipeModel:                strings.TrimSpace(raw.RecipeModel),
		RecipeTemperature:          raw.RecipeTemperature,
		RecipeMaxTokens:            raw.RecipeMaxTokens,
		TranscriptionBackend:       strings.ToLower(strings.TrimSpace(raw.TranscriptionBackend)),
		WhisperCommand:             strings.TrimSpace(raw.WhisperCommand),
		WhisperModelPath:           strings.TrimSpace(raw.WhisperModelPath),
		FFmpegCommand:              strings.TrimSpace(raw.FFmpegCommand),
		UpstreamTranscriptionModel: strings.TrimSpace(raw.UpstreamTranscriptionModel),
		YTDLPCommand:               strings.TrimSpace(raw.YTDLPCommand),
		AudioQuality:               strings.TrimSpace(raw.AudioQuality),
		WorkspaceRoot:              strings.TrimSpace(raw.WorkspaceRoot),
		RequestTimeout:             time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		ServerWriteTimeout:         time.Duration(raw.ServerWriteTimeoutSeconds) * time.Second,
		MaxConcurrentRuns:          raw.MaxConcurrentRuns,
		CORSAllowedOrigins:         normalizeOrigins(raw.CORSAllowedOrigins),
		ValidateIngredientUsage:    raw.ValidateIngredientUsage,
		LogLevel:                   strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks static settings only. A missing OPENAI_API_KEY is not a
// configuration error: every pipeline run reports it as a precondition failure.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.UpstreamBaseURL == "" {
		return errors.New("UPSTREAM_BASE_URL must not be empty")
	}
	if c.RecipeModel == "" {
		return errors.New("RECIPE_MODEL must not be empty")
	}
	if c.RecipeTemperature < 0 || c.RecipeTemperature > 2 {
		return errors.New("RECIPE_TEMPERATURE must be between 0 and 2")
	}
	if c.RecipeMaxTokens <= 0 {
		return errors.New("RECIPE_MAX_TOKENS must be > 0")
	}
	switch c.TranscriptionBackend {
	case TranscriptionBackendLocal:
		if c.WhisperCommand == "" {
			return errors.New("WHISPER_COMMAND must not be empty")
		}
		if c.WhisperModelPath == "" {
			return errors.New("WHISPER_MODEL_PATH must not be empty")
		}
		if c.FFmpegCommand == "" {
			return errors.New("FFMPEG_COMMAND must not be empty")
		}
	case TranscriptionBackendUpstream:
		if c.UpstreamTranscriptionModel == "" {
			return errors.New("UPSTREAM_TRANSCRIPTION_MODEL must not be empty")
		}
	default:
		return fmt.Errorf("TRANSCRIPTION_BACKEND must be %q or %q", TranscriptionBackendLocal, TranscriptionBackendUpstream)
	}
	if c.YTDLPCommand == "" {
		return errors.New("YTDLP_COMMAND must not be empty")
	}
	if c.AudioQuality == "" {
		return errors.New("AUDIO_QUALITY must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.ServerWriteTimeout <= 0 {
		return errors.New("SERVER_WRITE_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxConcurrentRuns < 0 {
		return errors.New("MAX_CONCURRENT_RUNS must be >= 0")
	}
	return nil
}

func normalizeOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, origin := range raw {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
