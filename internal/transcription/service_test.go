package transcription

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeflow/internal/command"
	"recipeflow/internal/media"
)

type fakeEngine struct {
	text  string
	err   error
	calls int
	path  string
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Transcribe(_ context.Context, audioPath string) (string, error) {
	f.calls++
	f.path = audioPath
	return f.text, f.err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestServiceTranscribeTrimsAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.mp3")
	writeFile(t, path, "mp3")
	engine := &fakeEngine{text: "  김치를 썰어요  "}

	transcript, err := New(engine).Transcribe(context.Background(), media.AudioAsset{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "김치를 썰어요", transcript.Text)
	assert.Equal(t, 7, transcript.Length)
	assert.Equal(t, path, engine.path)
}

func TestNewTranscriptComposesDecomposedText(t *testing.T) {
	transcript := NewTranscript("\u1112\u1161\u11ab\u1100\u1173\u11af")
	assert.Equal(t, "한글", transcript.Text)
	assert.Equal(t, 2, transcript.Length)
}

func TestServiceTranscribeAllowsEmptyTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.mp3")
	writeFile(t, path, "mp3")

	transcript, err := New(&fakeEngine{text: "   "}).Transcribe(context.Background(), media.AudioAsset{Path: path})
	require.NoError(t, err)
	assert.Empty(t, transcript.Text)
	assert.Zero(t, transcript.Length)
}

func TestServiceTranscribeRejectsBadAssets(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.mp3")
	writeFile(t, empty, "")
	engine := &fakeEngine{}
	svc := New(engine)

	_, err := svc.Transcribe(context.Background(), media.AudioAsset{Path: filepath.Join(dir, "missing.mp3")})
	assert.ErrorIs(t, err, ErrMissingAudio)

	_, err = svc.Transcribe(context.Background(), media.AudioAsset{Path: empty})
	assert.ErrorIs(t, err, ErrEmptyAudio)

	assert.Zero(t, engine.calls)
}

func TestServiceTranscribeWrapsEngineError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.mp3")
	writeFile(t, path, "mp3")
	boom := errors.New("model load failed")

	_, err := New(&fakeEngine{err: boom}).Transcribe(context.Background(), media.AudioAsset{Path: path})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fake transcription")
}

type fakeClient struct {
	body     string
	fileName string
	model    string
}

func (f *fakeClient) Transcribe(_ context.Context, file io.Reader, fileName, model string) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	f.body = string(data)
	f.fileName = fileName
	f.model = model
	return "hello", nil
}

func TestUpstreamEngineUploadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.mp3")
	writeFile(t, path, "mp3-bytes")
	client := &fakeClient{}

	text, err := NewUpstreamEngine(client, " whisper-1 ").Transcribe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "mp3-bytes", client.body)
	assert.Equal(t, "audio.mp3", client.fileName)
	assert.Equal(t, "whisper-1", client.model)
}

type scriptedRunner struct {
	names []string
	run   func(name string, args []string) (command.Result, error)
}

func (s *scriptedRunner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	s.names = append(s.names, name)
	return s.run(name, args)
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestWhisperCPPConvertsThenTranscribes(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "ggml-base.bin")
	audioPath := filepath.Join(dir, "audio.mp3")
	writeFile(t, modelPath, "model")
	writeFile(t, audioPath, "mp3")

	var whisperArgs []string
	runner := &scriptedRunner{run: func(name string, args []string) (command.Result, error) {
		switch name {
		case "ffmpeg":
			assert.Equal(t, audioPath, argValue(args, "-i"))
			assert.Equal(t, "16000", argValue(args, "-ar"))
			writeFile(t, args[len(args)-1], "wav")
		case "whisper-cli":
			whisperArgs = args
			writeFile(t, argValue(args, "-of")+".txt", " first segment\n\nsecond segment \n")
		default:
			t.Fatalf("unexpected command %q", name)
		}
		return command.Result{}, nil
	}}

	text, err := NewWhisperCPP("whisper-cli", "ffmpeg", modelPath, runner).Transcribe(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, "first segment second segment", text)
	assert.Equal(t, []string{"ffmpeg", "whisper-cli"}, runner.names)
	assert.Equal(t, modelPath, argValue(whisperArgs, "-m"))
	assert.Equal(t, "auto", argValue(whisperArgs, "-l"))
	assert.True(t, strings.HasPrefix(argValue(whisperArgs, "-f"), dir))
}

func TestWhisperCPPFailures(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "ggml-base.bin")
	audioPath := filepath.Join(dir, "audio.mp3")
	writeFile(t, modelPath, "model")
	writeFile(t, audioPath, "mp3")

	t.Run("missing model", func(t *testing.T) {
		runner := &scriptedRunner{run: func(string, []string) (command.Result, error) { return command.Result{}, nil }}
		_, err := NewWhisperCPP("whisper-cli", "ffmpeg", filepath.Join(dir, "nope.bin"), runner).Transcribe(context.Background(), audioPath)
		require.Error(t, err)
		assert.Empty(t, runner.names)
	})

	t.Run("ffmpeg failure", func(t *testing.T) {
		runner := &scriptedRunner{run: func(string, []string) (command.Result, error) {
			return command.Result{Stderr: "Invalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
		}}
		_, err := NewWhisperCPP("whisper-cli", "ffmpeg", modelPath, runner).Transcribe(context.Background(), audioPath)

		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "ffmpeg audio conversion", cmdErr.Step)
		assert.Contains(t, err.Error(), "Invalid data found")
	})

	t.Run("missing transcript file", func(t *testing.T) {
		runner := &scriptedRunner{run: func(string, []string) (command.Result, error) { return command.Result{}, nil }}
		_, err := NewWhisperCPP("whisper-cli", "ffmpeg", modelPath, runner).Transcribe(context.Background(), audioPath)
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
