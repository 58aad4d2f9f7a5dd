package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"recipeflow/internal/command"
)

const (
	// AudioFormat is the single lossy codec every fetched asset is transcoded to.
	AudioFormat = "mp3"
	// AudioFileName is the deterministic asset name inside a workspace.
	AudioFileName = "audio." + AudioFormat

	defaultQuality = "192K"
)

// AudioAsset is the extracted audio track of one video, owned by a pipeline
// run and removed together with its workspace.
type AudioAsset struct {
	Path     string
	Format   string
	Quality  string
	Size     int64
	Duration time.Duration
}

// FetchError carries the yt-dlp invocation that failed.
type FetchError struct {
	Message    string
	CommandLog command.Log
	Err        error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	detail := e.CommandLog.Summary()
	if detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, detail)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var (
	ErrEmptyAudio    = errors.New("extracted audio is empty")
	ErrZeroDuration  = errors.New("media has zero duration")
	ErrMissingOutput = errors.New("extracted audio file is missing")
)

// Fetcher extracts the best audio stream of a video with yt-dlp.
type Fetcher struct {
	command        string
	ffmpegLocation string
	quality        string
	runner         command.Runner
}

type Option func(*Fetcher)

// WithRunner overrides process execution (tests).
func WithRunner(runner command.Runner) Option {
	return func(f *Fetcher) {
		if runner != nil {
			f.runner = runner
		}
	}
}

// WithFFmpegLocation points yt-dlp at a specific ffmpeg binary or directory.
func WithFFmpegLocation(path string) Option {
	return func(f *Fetcher) {
		f.ffmpegLocation = strings.TrimSpace(path)
	}
}

func NewFetcher(ytdlpCommand, quality string, opts ...Option) *Fetcher {
	f := &Fetcher{
		command: strings.TrimSpace(ytdlpCommand),
		quality: strings.TrimSpace(quality),
		runner:  command.ExecRunner{},
	}
	if f.command == "" {
		f.command = "yt-dlp"
	}
	if f.quality == "" {
		f.quality = defaultQuality
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fetch downloads videoURL's audio into workspaceDir as a single mp3 file.
// One attempt is made; failures are returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, videoURL, workspaceDir string) (AudioAsset, error) {
	outPath := filepath.Join(workspaceDir, AudioFileName)
	args := buildYTDLPArgs(videoURL, workspaceDir, f.quality, f.ffmpegLocation)

	res, runErr := f.runner.Run(ctx, f.command, args...)
	log := command.NewLog(f.command, args, res)
	if runErr != nil {
		return AudioAsset{}, &FetchError{Message: "yt-dlp audio extraction failed", CommandLog: log, Err: runErr}
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return AudioAsset{}, &FetchError{Message: "yt-dlp completed but audio file is missing", CommandLog: log, Err: errors.Join(ErrMissingOutput, err)}
	}
	if info.Size() == 0 {
		return AudioAsset{}, &FetchError{Message: "yt-dlp produced an empty audio file", CommandLog: log, Err: ErrEmptyAudio}
	}

	duration, known := parseDuration(res.Stdout)
	if known && duration <= 0 {
		return AudioAsset{}, &FetchError{Message: "source media has no duration", CommandLog: log, Err: ErrZeroDuration}
	}

	return AudioAsset{
		Path:     outPath,
		Format:   AudioFormat,
		Quality:  f.quality,
		Size:     info.Size(),
		Duration: duration,
	}, nil
}

// buildYTDLPArgs selects the best audio-only stream (falling back to the best
// combined stream) and transcodes it to mp3 at a fixed bitrate. The duration is
// printed after post-processing so the caller can reject empty media.
func buildYTDLPArgs(videoURL, workspaceDir, quality, ffmpegLocation string) []string {
	args := []string{
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", AudioFormat,
		"--audio-quality", quality,
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--paths", workspaceDir,
		"--output", "audio.%(ext)s",
		"--print", "after_move:%(duration)s",
	}
	if ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", ffmpegLocation)
	}
	return append(args, "--", videoURL)
}

// parseDuration reads the last printed line as seconds. yt-dlp prints "NA"
// when the extractor does not know the duration.
func parseDuration(stdout string) (time.Duration, bool) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" || strings.EqualFold(last, "NA") {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(last, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
