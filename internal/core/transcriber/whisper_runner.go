package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/batchscribe/batchscribe/internal/core/device"
)

// commandResult captures one external process invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
	}
	return result, err
}

// WhisperBackend loads models by locating the whisper.cpp CLI binary and a
// model file; the returned handle shells out per file. GPU vs CPU is chosen
// with the binary's --no-gpu switch, so device failures surface as process
// stderr rather than load errors.
type WhisperBackend struct {
	binaryPath string
	ffmpegPath string
	modelsDir  string
	runner     commandRunner
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(string) error
	readFile   func(string) ([]byte, error)
}

// NewWhisperBackend builds the production backend. binaryPath and ffmpegPath
// may be empty, in which case the tools are resolved from PATH at load time.
func NewWhisperBackend(binaryPath, ffmpegPath, modelsDir string) *WhisperBackend {
	return &WhisperBackend{
		binaryPath: binaryPath,
		ffmpegPath: ffmpegPath,
		modelsDir:  modelsDir,
		runner:     execRunner{},
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		readFile:   os.ReadFile,
	}
}

// Load resolves the binary, ffmpeg, and the model file, returning a handle
// bound to the requested device.
func (b *WhisperBackend) Load(model string, dev device.Choice) (Handle, error) {
	binary := b.binaryPath
	if binary == "" {
		path, err := b.lookPath("whisper-cli")
		if err != nil {
			return nil, fmt.Errorf("whisper-cli not found in PATH: install whisper.cpp or set whisper_binary in the config")
		}
		binary = path
	} else if _, err := b.stat(binary); err != nil {
		return nil, fmt.Errorf("whisper binary not found: %s", binary)
	}

	ffmpeg := b.ffmpegPath
	if ffmpeg == "" {
		path, err := b.lookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: it is required to decode media into audio")
		}
		ffmpeg = path
	}

	modelsDir := b.modelsDir
	if modelsDir == "" {
		dir, err := DefaultModelsDir()
		if err != nil {
			return nil, err
		}
		modelsDir = dir
	}
	mm := NewModelManager(modelsDir)
	modelPath := mm.ModelPath(model)
	if info, err := b.stat(modelPath); err != nil || info.IsDir() {
		return nil, fmt.Errorf("model %q not found at %s: download it with `batchscribe models download %s`", model, modelPath, model)
	}

	return &whisperHandle{
		backend:    b,
		binaryPath: binary,
		ffmpegPath: ffmpeg,
		modelPath:  modelPath,
		model:      model,
		device:     dev,
	}, nil
}

// whisperHandle is a loaded model bound to one device.
type whisperHandle struct {
	backend    *WhisperBackend
	binaryPath string
	ffmpegPath string
	modelPath  string
	model      string
	device     device.Choice
}

func (h *whisperHandle) Device() device.Choice { return h.device }
func (h *whisperHandle) Model() string         { return h.model }
func (h *whisperHandle) Close() error          { return nil }

// Transcribe decodes the media to 16kHz mono WAV and runs whisper.cpp over
// it, parsing the JSON transcript it emits.
func (h *whisperHandle) Transcribe(ctx context.Context, mediaPath, language string) (*Result, error) {
	b := h.backend

	tempDir, err := b.mkdirTemp("", "batchscribe-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary workspace: %w", err)
	}
	defer func() { _ = b.removeAll(tempDir) }()

	wavPath := filepath.Join(tempDir, "audio-16k-mono.wav")
	if err := h.extractAudio(ctx, mediaPath, wavPath); err != nil {
		return nil, err
	}

	outBase := filepath.Join(tempDir, "transcript")
	args := buildWhisperArgs(h.modelPath, wavPath, outBase, language, h.device)

	result, runErr := b.runner.Run(ctx, h.binaryPath, args...)
	if runErr != nil {
		return nil, fmt.Errorf("whisper inference failed (exit %d): %s",
			result.ExitCode, summarizeStderr(result.Stderr, runErr))
	}

	raw, err := b.readFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("whisper completed but produced no transcript: %w", err)
	}
	return parseWhisperJSON(raw)
}

// extractAudio converts any supported container to the 16kHz mono PCM WAV
// whisper expects.
func (h *whisperHandle) extractAudio(ctx context.Context, inputPath, wavPath string) error {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		wavPath,
	}
	result, err := h.backend.runner.Run(ctx, h.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg audio extraction failed (exit %d): %s",
			result.ExitCode, summarizeStderr(result.Stderr, err))
	}
	return nil
}

// buildWhisperArgs assembles the whisper.cpp CLI invocation. CPU runs pass
// --no-gpu so an accelerated build never touches the GPU after demotion.
func buildWhisperArgs(modelPath, wavPath, outBase, language string, dev device.Choice) []string {
	threads := runtime.NumCPU()
	if threads > 8 {
		threads = 8
	}

	args := []string{
		"-m", modelPath,
		"-f", wavPath,
		"-of", outBase,
		"-oj",
		"-t", strconv.Itoa(threads),
	}
	if dev == device.CPU {
		args = append(args, "--no-gpu")
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}

// normalizeLanguage maps "auto" and empty to no language override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// summarizeStderr keeps the tail of stderr, which is where whisper.cpp and
// ffmpeg report the actual failure.
func summarizeStderr(stderr string, err error) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 6 {
		lines = lines[len(lines)-6:]
	}
	tail := strings.TrimSpace(strings.Join(lines, "\n"))
	if tail == "" {
		return err.Error()
	}
	return tail
}

// whisperJSON mirrors the document written by whisper.cpp's -oj flag.
type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperJSON converts whisper.cpp output into a Result. Offsets come
// in milliseconds.
func parseWhisperJSON(raw []byte) (*Result, error) {
	var doc whisperJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	result := &Result{Language: doc.Result.Language}
	var full strings.Builder
	for _, seg := range doc.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, Segment{
			Start: float64(seg.Offsets.From) / 1000.0,
			End:   float64(seg.Offsets.To) / 1000.0,
			Text:  text,
		})
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)
	}
	result.Text = full.String()

	if len(result.Segments) == 0 {
		log.Printf("transcriber: whisper produced no segments")
	}
	return result, nil
}

// NewWhisperBackendForTests constructs a backend with injectable dependencies.
func NewWhisperBackendForTests(
	binaryPath string,
	ffmpegPath string,
	modelsDir string,
	runner commandRunner,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(string) error,
	readFile func(string) ([]byte, error),
) *WhisperBackend {
	return &WhisperBackend{
		binaryPath: binaryPath,
		ffmpegPath: ffmpegPath,
		modelsDir:  modelsDir,
		runner:     runner,
		lookPath:   lookPath,
		stat:       stat,
		mkdirTemp:  mkdirTemp,
		removeAll:  removeAll,
		readFile:   readFile,
	}
}
