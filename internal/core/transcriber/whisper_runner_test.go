package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/batchscribe/batchscribe/internal/core/device"
)

const sampleWhisperJSON = `{
	"result": {"language": "en"},
	"transcription": [
		{"offsets": {"from": 0, "to": 1500}, "text": " hello"},
		{"offsets": {"from": 1500, "to": 3200}, "text": " world "},
		{"offsets": {"from": 3200, "to": 3200}, "text": "  "}
	]
}`

// recordingRunner records invocations and plays back canned results.
type recordingRunner struct {
	calls   [][]string
	failFor map[string]error
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if err := r.failFor[name]; err != nil {
		return commandResult{ExitCode: 1, Stderr: err.Error()}, err
	}
	return commandResult{}, nil
}

func testBackend(t *testing.T, runner commandRunner) *WhisperBackend {
	t.Helper()
	modelsDir := t.TempDir()
	modelPath := filepath.Join(modelsDir, "ggml-base.en.bin")
	if err := os.WriteFile(modelPath, []byte("model"), 0o644); err != nil {
		t.Fatal(err)
	}

	return NewWhisperBackendForTests(
		"/opt/whisper/whisper-cli",
		"/usr/bin/ffmpeg",
		modelsDir,
		runner,
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(name string) (os.FileInfo, error) {
			if name == "/opt/whisper/whisper-cli" {
				return os.Stat(modelPath)
			}
			return os.Stat(name)
		},
		os.MkdirTemp,
		os.RemoveAll,
		func(string) ([]byte, error) { return []byte(sampleWhisperJSON), nil },
	)
}

func TestLoadMissingModel(t *testing.T) {
	backend := testBackend(t, &recordingRunner{})
	_, err := backend.Load("large-v3", device.CPU)
	if err == nil {
		t.Fatal("expected error for missing model file")
	}
	if !strings.Contains(err.Error(), "models download") {
		t.Errorf("error should point at the download command, got %q", err)
	}
}

func TestTranscribeRunsExtractionThenInference(t *testing.T) {
	runner := &recordingRunner{}
	backend := testBackend(t, runner)

	handle, err := backend.Load("base.en", device.CUDA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	result, err := handle.Transcribe(context.Background(), "/media/talk.mp4", "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("expected ffmpeg then whisper, got %d calls", len(runner.calls))
	}
	if runner.calls[0][0] != "/usr/bin/ffmpeg" {
		t.Errorf("first call = %s, want ffmpeg", runner.calls[0][0])
	}
	whisperArgs := strings.Join(runner.calls[1], " ")
	if !strings.Contains(whisperArgs, "-oj") || !strings.Contains(whisperArgs, "-l en") {
		t.Errorf("whisper args missing -oj or language: %v", runner.calls[1])
	}
	if strings.Contains(whisperArgs, "--no-gpu") {
		t.Errorf("CUDA handle must not pass --no-gpu: %v", runner.calls[1])
	}

	if result.Text != "hello world" {
		t.Errorf("Text = %q, want \"hello world\"", result.Text)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("got %d segments, want 2 (blank segment dropped)", len(result.Segments))
	}
	if result.Segments[0].Start != 0 || result.Segments[0].End != 1.5 {
		t.Errorf("segment 0 = %+v, want 0..1.5", result.Segments[0])
	}
	if result.Segments[1].Start != 1.5 || result.Segments[1].End != 3.2 {
		t.Errorf("segment 1 = %+v, want 1.5..3.2", result.Segments[1])
	}
	if result.Language != "en" {
		t.Errorf("Language = %q, want en", result.Language)
	}
}

func TestTranscribeCPUPassesNoGPU(t *testing.T) {
	runner := &recordingRunner{}
	backend := testBackend(t, runner)

	handle, err := backend.Load("base.en", device.CPU)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := handle.Transcribe(context.Background(), "/media/talk.wav", "auto"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	whisperArgs := strings.Join(runner.calls[1], " ")
	if !strings.Contains(whisperArgs, "--no-gpu") {
		t.Errorf("CPU handle must pass --no-gpu: %v", runner.calls[1])
	}
	if strings.Contains(whisperArgs, "-l ") {
		t.Errorf("auto language must not set -l: %v", runner.calls[1])
	}
}

func TestTranscribeSurfacesInferenceStderr(t *testing.T) {
	runner := &recordingRunner{failFor: map[string]error{
		"/opt/whisper/whisper-cli": errors.New("CUDA error: out of memory"),
	}}
	backend := testBackend(t, runner)

	handle, err := backend.Load("base.en", device.CUDA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = handle.Transcribe(context.Background(), "/media/talk.mp4", "en")
	if err == nil {
		t.Fatal("expected inference error")
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("error should carry stderr text, got %q", err)
	}
}

func TestModelManagerPaths(t *testing.T) {
	dir := t.TempDir()
	mm := NewModelManager(dir)

	if got := mm.ModelPath("base.en"); got != filepath.Join(dir, "ggml-base.en.bin") {
		t.Errorf("ModelPath(base.en) = %q", got)
	}
	if got := mm.ModelPath("custom-model"); got != filepath.Join(dir, "custom-model.bin") {
		t.Errorf("ModelPath(custom) = %q", got)
	}

	if mm.IsModelDownloaded("base.en") {
		t.Error("IsModelDownloaded should be false before download")
	}
	if err := os.WriteFile(filepath.Join(dir, "ggml-base.en.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mm.IsModelDownloaded("base.en") {
		t.Error("IsModelDownloaded should be true after file exists")
	}

	names := mm.ListDownloadedModels()
	if len(names) != 1 || names[0] != "base.en" {
		t.Errorf("ListDownloadedModels = %v, want [base.en]", names)
	}
}
