package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/batchscribe/batchscribe/internal/core/device"
	"github.com/batchscribe/batchscribe/internal/core/output"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

type transcribeCall struct {
	dev  device.Choice
	path string
}

// fakeBackend records every load and every transcription call so tests can
// assert device ordering across the whole run.
type fakeBackend struct {
	mu         sync.Mutex
	loads      []device.Choice
	loadErr    map[device.Choice]error
	transcribe func(dev device.Choice, mediaPath string) (*transcriber.Result, error)
	calls      []transcribeCall
}

func (b *fakeBackend) Load(model string, dev device.Choice) (transcriber.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads = append(b.loads, dev)
	if err := b.loadErr[dev]; err != nil {
		return nil, err
	}
	return &fakeHandle{backend: b, dev: dev, model: model}, nil
}

func (b *fakeBackend) recordedCalls() []transcribeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]transcribeCall(nil), b.calls...)
}

func (b *fakeBackend) recordedLoads() []device.Choice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]device.Choice(nil), b.loads...)
}

type fakeHandle struct {
	backend *fakeBackend
	dev     device.Choice
	model   string
}

func (h *fakeHandle) Device() device.Choice { return h.dev }
func (h *fakeHandle) Model() string         { return h.model }
func (h *fakeHandle) Close() error          { return nil }

func (h *fakeHandle) Transcribe(_ context.Context, mediaPath, _ string) (*transcriber.Result, error) {
	h.backend.mu.Lock()
	h.backend.calls = append(h.backend.calls, transcribeCall{dev: h.dev, path: mediaPath})
	fn := h.backend.transcribe
	h.backend.mu.Unlock()

	if fn != nil {
		return fn(h.dev, mediaPath)
	}
	return &transcriber.Result{
		Text:     "hello world",
		Segments: []transcriber.Segment{{Start: 0, End: 1.5, Text: "hello world"}},
	}, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) terminal(t *testing.T) Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no events recorded")
	}
	return r.events[len(r.events)-1]
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// cpuResolver always resolves to CPU: no nvidia-smi in sight.
func cpuResolver() *device.Resolver {
	return device.NewResolverForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		func(context.Context, string, ...string) error { return errors.New("unreachable") },
		os.Stat,
		func(string) string { return "" },
		func() (string, error) { return "/usr/bin/fake", nil },
		"linux",
	)
}

// cudaResolver simulates a machine with a responsive driver and every
// required library present.
func cudaResolver() *device.Resolver {
	return device.NewResolverForTests(
		func(string) (string, error) { return "/usr/bin/nvidia-smi", nil },
		func(context.Context, string, ...string) error { return nil },
		func(string) (os.FileInfo, error) { return nil, nil },
		func(key string) string {
			if key == "CUDA_PATH" {
				return "/opt/cuda"
			}
			return ""
		},
		func() (string, error) { return "/usr/bin/fake", nil },
		"linux",
	)
}

func writeMediaTree(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRunMirrorsDirectoryStructure(t *testing.T) {
	input := writeMediaTree(t, "a.mp4", "sub/b.wav", "c.mkv")
	outDir := t.TempDir()
	backend := &fakeBackend{}
	ctrl := New(cpuResolver(), transcriber.NewLoader(backend))
	rec := &eventRecorder{}

	outcomes, err := ctrl.Run(context.Background(), Options{
		Input:  input,
		Output: outDir,
		Device: device.PreferCPU,
		Format: output.FormatTxt,
	}, rec.listen)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	for _, o := range outcomes {
		if !o.Success || o.Error != "" {
			t.Errorf("outcome %+v should be a clean success", o)
		}
	}
	for _, want := range []string{"a.txt", filepath.Join("sub", "b.txt"), "c.txt"} {
		if _, err := os.Stat(filepath.Join(outDir, want)); err != nil {
			t.Errorf("missing output %s: %v", want, err)
		}
	}
	if got := rec.terminal(t); got.Kind != EventComplete {
		t.Errorf("terminal event = %v, want EventComplete", got.Kind)
	}
}

func TestRunIsolatesPerFileFailures(t *testing.T) {
	input := writeMediaTree(t, "good.mp4", "bad.mp4", "also-good.wav")
	backend := &fakeBackend{
		transcribe: func(_ device.Choice, mediaPath string) (*transcriber.Result, error) {
			if filepath.Base(mediaPath) == "bad.mp4" {
				return nil, errors.New("decode failed: corrupt container")
			}
			return &transcriber.Result{Text: "ok"}, nil
		},
	}
	ctrl := New(cpuResolver(), transcriber.NewLoader(backend))

	outcomes, err := ctrl.Run(context.Background(), Options{
		Input:  input,
		Output: t.TempDir(),
		Device: device.PreferCPU,
		Format: output.FormatTxt,
	}, nil)
	if err != nil {
		t.Fatalf("per-file failures must not abort the batch: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	failures := 0
	for _, o := range outcomes {
		if !o.Success {
			failures++
			if o.Error == "" {
				t.Errorf("failed outcome %s has empty error", o.Path)
			}
		} else if o.Error != "" {
			t.Errorf("successful outcome %s carries error %q", o.Path, o.Error)
		}
	}
	if failures != 1 {
		t.Errorf("got %d failures, want exactly 1", failures)
	}
}

func TestRunDemotesToCPUOnce(t *testing.T) {
	input := writeMediaTree(t, "a.mp4", "b.mp4", "c.mp4", "d.mp4")
	backend := &fakeBackend{
		transcribe: func(dev device.Choice, mediaPath string) (*transcriber.Result, error) {
			if dev == device.CUDA && filepath.Base(mediaPath) == "b.mp4" {
				return nil, errors.New("CUDA error: out of memory")
			}
			return &transcriber.Result{Text: "ok"}, nil
		},
	}
	ctrl := New(cudaResolver(), transcriber.NewLoader(backend))

	outcomes, err := ctrl.Run(context.Background(), Options{
		Input:  input,
		Output: t.TempDir(),
		Device: device.PreferAuto,
		Format: output.FormatTxt,
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range outcomes {
		if !o.Success {
			t.Errorf("file %s should succeed after the cpu retry: %s", o.Path, o.Error)
		}
	}

	loads := backend.recordedLoads()
	if len(loads) != 2 || loads[0] != device.CUDA || loads[1] != device.CPU {
		t.Fatalf("loads = %v, want [cuda cpu]", loads)
	}

	// Demotion is one-way: after the first CUDA failure no transcription
	// may run on the CUDA handle again.
	sawCPU := false
	for _, c := range backend.recordedCalls() {
		if c.dev == device.CPU {
			sawCPU = true
		} else if sawCPU {
			t.Fatalf("CUDA call after demotion: %+v", c)
		}
	}
	if !sawCPU {
		t.Fatal("expected at least one CPU call after demotion")
	}
}

func TestRunReloadFailureIsFatal(t *testing.T) {
	input := writeMediaTree(t, "a.mp4", "b.mp4")
	backend := &fakeBackend{
		transcribe: func(dev device.Choice, _ string) (*transcriber.Result, error) {
			return nil, errors.New("cudnn_ops64_9.dll could not be loaded")
		},
	}
	backend.loadErr = map[device.Choice]error{}
	ctrl := New(cudaResolver(), transcriber.NewLoader(backend))
	rec := &eventRecorder{}

	// First load on CUDA succeeds; make the demotion reload fail.
	backend.mu.Lock()
	backend.loadErr[device.CPU] = errors.New("model file vanished")
	backend.mu.Unlock()

	_, err := ctrl.Run(context.Background(), Options{
		Input:   input,
		Output:  t.TempDir(),
		Device:  device.PreferCUDA,
		Format:  output.FormatTxt,
		Workers: 1,
	}, rec.listen)
	if err == nil {
		t.Fatal("reload failure must abort the batch")
	}
	if got := rec.terminal(t); got.Kind != EventError {
		t.Errorf("terminal event = %v, want EventError", got.Kind)
	}
}

func TestRunSkipExistingIsIdempotent(t *testing.T) {
	input := writeMediaTree(t, "a.mp4", "sub/b.wav")
	outDir := t.TempDir()
	backend := &fakeBackend{}
	ctrl := New(cpuResolver(), transcriber.NewLoader(backend))
	opts := Options{
		Input:        input,
		Output:       outDir,
		Device:       device.PreferCPU,
		Format:       output.FormatTxt,
		SkipExisting: true,
	}

	if _, err := ctrl.Run(context.Background(), opts, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := len(backend.recordedCalls())
	if first != 2 {
		t.Fatalf("first run made %d transcriptions, want 2", first)
	}

	outcomes, err := ctrl.Run(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := len(backend.recordedCalls()); got != first {
		t.Errorf("second run transcribed %d more file(s), want 0", got-first)
	}
	for _, o := range outcomes {
		if !o.Success {
			t.Errorf("skipped file %s should count as success", o.Path)
		}
	}
}

func TestRunLoadFailureShortCircuits(t *testing.T) {
	input := writeMediaTree(t, "a.mp4")
	backend := &fakeBackend{
		loadErr: map[device.Choice]error{
			device.CUDA: errors.New("CUDA driver version is insufficient"),
			device.CPU:  errors.New("model file is corrupt"),
		},
	}
	ctrl := New(cudaResolver(), transcriber.NewLoader(backend))
	rec := &eventRecorder{}

	outcomes, err := ctrl.Run(context.Background(), Options{
		Input:  input,
		Output: t.TempDir(),
		Device: device.PreferAuto,
		Format: output.FormatTxt,
	}, rec.listen)
	if err == nil {
		t.Fatal("expected load error")
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes, want empty list", len(outcomes))
	}
	if n := rec.count(EventError); n != 1 {
		t.Errorf("got %d error events, want exactly 1", n)
	}
	if n := rec.count(EventProgress); n != 0 {
		t.Errorf("no file should be dispatched after a load failure, got %d progress events", n)
	}
	if calls := backend.recordedCalls(); len(calls) != 0 {
		t.Errorf("no transcription should run, got %d", len(calls))
	}
}

func TestRunCancellation(t *testing.T) {
	input := writeMediaTree(t, "a.mp4", "b.mp4", "c.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	backend := &fakeBackend{
		transcribe: func(device.Choice, string) (*transcriber.Result, error) {
			cancel()
			return &transcriber.Result{Text: "ok"}, nil
		},
	}
	ctrl := New(cpuResolver(), transcriber.NewLoader(backend))
	rec := &eventRecorder{}

	outcomes, err := ctrl.Run(ctx, Options{
		Input:  input,
		Output: t.TempDir(),
		Device: device.PreferCPU,
		Format: output.FormatTxt,
	}, rec.listen)
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if len(outcomes) >= 3 {
		t.Errorf("expected a partial run, got all %d outcomes", len(outcomes))
	}
	if got := rec.terminal(t); got.Kind != EventCancelled {
		t.Errorf("terminal event = %v, want EventCancelled", got.Kind)
	}
}

func TestRunWithMultipleWorkers(t *testing.T) {
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("clip-%d.mp4", i)
	}
	input := writeMediaTree(t, names...)
	backend := &fakeBackend{}
	ctrl := New(cpuResolver(), transcriber.NewLoader(backend))

	outcomes, err := ctrl.Run(context.Background(), Options{
		Input:   input,
		Output:  t.TempDir(),
		Device:  device.PreferCPU,
		Format:  output.FormatSRT,
		Workers: 4,
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != len(names) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(names))
	}
	seen := map[string]bool{}
	for _, o := range outcomes {
		if seen[o.Path] {
			t.Errorf("duplicate outcome for %s", o.Path)
		}
		seen[o.Path] = true
	}
}

func TestRunRejectsNonMediaFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.pdf")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctrl := New(cpuResolver(), transcriber.NewLoader(&fakeBackend{}))
	if _, err := ctrl.Run(context.Background(), Options{
		Input:  path,
		Output: t.TempDir(),
		Device: device.PreferCPU,
	}, nil); err == nil {
		t.Fatal("expected error for unsupported input file")
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	backend := &fakeBackend{}
	ctrl := New(cpuResolver(), transcriber.NewLoader(backend))
	rec := &eventRecorder{}

	outcomes, err := ctrl.Run(context.Background(), Options{
		Input:  t.TempDir(),
		Output: t.TempDir(),
		Device: device.PreferCPU,
	}, rec.listen)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes, want 0", len(outcomes))
	}
	if got := rec.terminal(t); got.Kind != EventComplete {
		t.Errorf("terminal event = %v, want EventComplete", got.Kind)
	}
}

func TestOutputPath(t *testing.T) {
	got := outputPath("/out", filepath.Join("sub", "clip.mp4"), output.FormatSRT)
	want := filepath.Join("/out", "sub", "clip.srt")
	if got != want {
		t.Errorf("outputPath = %q, want %q", got, want)
	}
}
