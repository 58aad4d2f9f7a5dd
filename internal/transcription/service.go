package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"recipeflow/internal/media"
)

var (
	ErrMissingAudio = errors.New("audio asset does not exist")
	ErrEmptyAudio   = errors.New("audio asset is empty")
)

// Engine turns an audio file into text. Implementations run synchronously.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Name() string
}

// Transcript is the speech-to-text output of one audio asset.
type Transcript struct {
	Text string
	// Length is the rune count of Text, kept for logs and metrics.
	Length int
}

// NewTranscript trims text and composes it to NFC; some engines emit
// decomposed Hangul jamo.
func NewTranscript(text string) Transcript {
	text = norm.NFC.String(strings.TrimSpace(text))
	return Transcript{Text: text, Length: utf8.RuneCountInString(text)}
}

type Service struct {
	engine Engine
}

func New(engine Engine) *Service {
	return &Service{engine: engine}
}

// Transcribe checks the asset and runs the engine once. Silent audio may
// produce an empty transcript; that is not an error.
func (s *Service) Transcribe(ctx context.Context, asset media.AudioAsset) (Transcript, error) {
	info, err := os.Stat(asset.Path)
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: %s: %w", ErrMissingAudio, asset.Path, err)
	}
	if info.Size() == 0 {
		return Transcript{}, fmt.Errorf("%w: %s", ErrEmptyAudio, asset.Path)
	}

	text, err := s.engine.Transcribe(ctx, asset.Path)
	if err != nil {
		return Transcript{}, fmt.Errorf("%s transcription: %w", s.engine.Name(), err)
	}
	return NewTranscript(text), nil
}
