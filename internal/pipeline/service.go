package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"recipeflow/internal/media"
	"recipeflow/internal/recipe"
	"recipeflow/internal/synthesis"
	"recipeflow/internal/transcription"
)

type Fetcher interface {
	Fetch(ctx context.Context, videoURL, workspaceDir string) (media.AudioAsset, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, asset media.AudioAsset) (transcription.Transcript, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, transcript, videoURL string) (synthesis.Result, error)
}

// Observer receives stage and run timings. Outcome is "ok" or "error" for
// stages and one of the Kind values for runs.
type Observer interface {
	ObserveStage(stage, outcome string, duration time.Duration)
	ObserveRun(kind string, duration time.Duration)
}

// Kind tags the variant held by a Result.
type Kind string

const (
	KindSuccess      Kind = "success"
	KindParseFailure Kind = "parse_failure"
	KindStageFailure Kind = "stage_failure"
)

type Timings struct {
	Fetch      time.Duration
	Transcribe time.Duration
	Synthesize time.Duration
	Total      time.Duration
}

// Result is the single value a run produces:
//   - KindSuccess: Transcript and Recipe are set.
//   - KindParseFailure: Transcript, RawResponse and ParseError are set.
//   - KindStageFailure: Failure is set.
type Result struct {
	Kind        Kind
	RunID       string
	Transcript  string
	Recipe      *recipe.Recipe
	RawResponse string
	ParseError  string
	Failure     *StageError
	Usage       *synthesis.TokenUsage
	Timings     Timings
	// States is the sequence of states the run passed through.
	States []State
}

// Err returns the stage failure as an error, or nil for the other variants.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

type Options struct {
	// Credential is the language-model API key. Runs fail their precondition
	// check when it is empty.
	Credential string
	// WorkspaceRoot is the parent of per-run workspaces; empty means os.TempDir().
	WorkspaceRoot string
	Logger        *slog.Logger
	Observer      Observer
}

type Service struct {
	fetcher       Fetcher
	transcriber   Transcriber
	synthesizer   Synthesizer
	credential    string
	workspaceRoot string
	logger        *slog.Logger
	observer      Observer
}

func New(fetcher Fetcher, transcriber Transcriber, synthesizer Synthesizer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:       fetcher,
		transcriber:   transcriber,
		synthesizer:   synthesizer,
		credential:    strings.TrimSpace(opts.Credential),
		workspaceRoot: strings.TrimSpace(opts.WorkspaceRoot),
		logger:        logger,
		observer:      opts.Observer,
	}
}

// Run executes fetch, transcribe and synthesize in order inside a private
// workspace that is removed before Run returns, whatever the outcome.
func (s *Service) Run(ctx context.Context, videoURL string) (result Result) {
	started := time.Now()
	m := newMachine()
	result.RunID = uuid.NewString()
	logger := s.logger.With("run_id", result.RunID, "video_url", videoURL)

	defer func() {
		if rec := recover(); rec != nil {
			failure := unexpectedError(m.fail(), rec)
			logger.Error("pipeline fault recovered", "stage", failure.Stage, "panic", rec)
			result = Result{RunID: result.RunID, Kind: KindStageFailure, Failure: failure, Timings: result.Timings}
		}
		result.States = m.history
		result.Timings.Total = time.Since(started)
		s.observeRun(result.Kind, result.Timings.Total)
		logger.Info("pipeline finished", "kind", result.Kind, "duration_ms", result.Timings.Total.Milliseconds())
	}()

	if s.credential == "" {
		m.fail()
		return stageFailure(result, preconditionError("language model credential is not configured", ErrMissingCredential), logger)
	}
	if strings.TrimSpace(videoURL) == "" {
		m.fail()
		return stageFailure(result, preconditionError("video url is required", ErrEmptyVideoURL), logger)
	}

	workspace, err := os.MkdirTemp(s.workspaceRoot, "recipeflow-"+result.RunID[:8]+"-*")
	if err != nil {
		m.fail()
		return stageFailure(result, preconditionError(fmt.Sprintf("create workspace: %v", err), err), logger)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn("workspace cleanup failed", "workspace", workspace, "error", err)
		}
	}()

	m.advance(StateFetching)
	logger.Info("fetching audio", "workspace", workspace)
	stageStarted := time.Now()
	asset, err := s.fetcher.Fetch(ctx, videoURL, workspace)
	result.Timings.Fetch = s.observeStage(StageFetch, stageStarted, err)
	if err != nil {
		m.fail()
		return stageFailure(result, stageError(StageFetch, "audio download failed", err), logger)
	}
	logger.Info("audio ready", "bytes", asset.Size, "duration", asset.Duration)

	m.advance(StateTranscribing)
	stageStarted = time.Now()
	transcript, err := s.transcriber.Transcribe(ctx, asset)
	result.Timings.Transcribe = s.observeStage(StageTranscribe, stageStarted, err)
	if err != nil {
		m.fail()
		return stageFailure(result, stageError(StageTranscribe, "transcription failed", err), logger)
	}
	result.Transcript = transcript.Text
	logger.Info("transcript ready", "length", transcript.Length)

	m.advance(StateSynthesizing)
	stageStarted = time.Now()
	synth, err := s.synthesizer.Synthesize(ctx, transcript.Text, videoURL)
	result.Timings.Synthesize = s.observeStage(StageSynthesize, stageStarted, err)
	if err != nil {
		m.fail()
		return stageFailure(result, stageError(StageSynthesize, "recipe generation failed", err), logger)
	}
	m.advance(StateDone)

	result.Usage = synth.Usage
	if !synth.Parsed() {
		result.Kind = KindParseFailure
		result.RawResponse = synth.RawResponse
		result.ParseError = fmt.Sprintf("failed to parse recipe JSON from model response: %v", synth.ParseErr)
		logger.Warn("model response is not a valid recipe", "error", synth.ParseErr)
		return result
	}

	result.Kind = KindSuccess
	result.Recipe = synth.Recipe
	logger.Info("recipe parsed", "title", synth.Recipe.Title, "steps", len(synth.Recipe.Steps))
	return result
}

// stageFailure drops any partial data so a failed run carries only the failure.
func stageFailure(partial Result, failure *StageError, logger *slog.Logger) Result {
	logger.Error("pipeline stage failed", "stage", failure.Stage, "error", failure.Message)
	return Result{
		Kind:    KindStageFailure,
		RunID:   partial.RunID,
		Failure: failure,
		Timings: partial.Timings,
	}
}

func (s *Service) observeStage(stage Stage, started time.Time, err error) time.Duration {
	duration := time.Since(started)
	if s.observer != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.observer.ObserveStage(string(stage), outcome, duration)
	}
	return duration
}

func (s *Service) observeRun(kind Kind, duration time.Duration) {
	if s.observer != nil {
		s.observer.ObserveRun(string(kind), duration)
	}
}
