package transcription

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Client interface {
	Transcribe(ctx context.Context, file io.Reader, fileName, model string) (string, error)
}

// UpstreamEngine uploads the audio to an OpenAI-compatible /audio/transcriptions endpoint.
type UpstreamEngine struct {
	client Client
	model  string
}

func NewUpstreamEngine(client Client, model string) *UpstreamEngine {
	return &UpstreamEngine{client: client, model: strings.TrimSpace(model)}
}

func (e *UpstreamEngine) Name() string { return "upstream" }

func (e *UpstreamEngine) Transcribe(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	return e.client.Transcribe(ctx, file, filepath.Base(audioPath), e.model)
}
