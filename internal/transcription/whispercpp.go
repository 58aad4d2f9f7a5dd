package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"recipeflow/internal/command"
)

// CommandError is a failed ffmpeg or whisper.cpp invocation.
type CommandError struct {
	Step       string
	CommandLog command.Log
	Err        error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	if detail := e.CommandLog.Summary(); detail != "" {
		return fmt.Sprintf("%s failed (exit=%d): %s", e.Step, e.CommandLog.ExitCode, detail)
	}
	return fmt.Sprintf("%s failed (exit=%d)", e.Step, e.CommandLog.ExitCode)
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WhisperCPP runs a local whisper.cpp model. The audio is first converted to
// 16 kHz mono PCM next to the source file, so it lives in the same workspace.
type WhisperCPP struct {
	whisperPath string
	ffmpegPath  string
	modelPath   string
	runner      command.Runner
}

func NewWhisperCPP(whisperPath, ffmpegPath, modelPath string, runner command.Runner) *WhisperCPP {
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &WhisperCPP{
		whisperPath: strings.TrimSpace(whisperPath),
		ffmpegPath:  strings.TrimSpace(ffmpegPath),
		modelPath:   strings.TrimSpace(modelPath),
		runner:      runner,
	}
}

func (w *WhisperCPP) Name() string { return "whisper.cpp" }

func (w *WhisperCPP) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(w.modelPath); err != nil {
		return "", fmt.Errorf("cannot access whisper model %s: %w", w.modelPath, err)
	}

	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	wavPath := base + "-16k-mono.wav"
	ffmpegArgs := buildFFmpegArgs(audioPath, wavPath)
	res, err := w.runner.Run(ctx, w.ffmpegPath, ffmpegArgs...)
	if err != nil {
		return "", &CommandError{Step: "ffmpeg audio conversion", CommandLog: command.NewLog(w.ffmpegPath, ffmpegArgs, res), Err: err}
	}

	textBase := base + "-transcript"
	whisperArgs := buildWhisperArgs(w.modelPath, wavPath, textBase)
	res, err = w.runner.Run(ctx, w.whisperPath, whisperArgs...)
	if err != nil {
		return "", &CommandError{Step: "whisper.cpp transcription", CommandLog: command.NewLog(w.whisperPath, whisperArgs, res), Err: err}
	}

	content, err := os.ReadFile(textBase + ".txt")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("whisper.cpp completed but transcript file is missing: %w", err)
		}
		return "", err
	}
	return joinSegments(string(content)), nil
}

// buildFFmpegArgs converts any input to the mono 16 kHz PCM WAV whisper.cpp expects.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs requests a txt export with automatic language detection.
func buildWhisperArgs(modelPath, audioPath, textBase string) []string {
	return []string{
		"-m", modelPath,
		"-f", audioPath,
		"-l", "auto",
		"-of", textBase,
		"-otxt",
		"-np",
	}
}

// joinSegments flattens whisper.cpp's one-segment-per-line output.
func joinSegments(s string) string {
	lines := strings.Split(s, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}
