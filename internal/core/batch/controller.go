package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/batchscribe/batchscribe/internal/core/device"
	"github.com/batchscribe/batchscribe/internal/core/media"
	"github.com/batchscribe/batchscribe/internal/core/output"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

// Options configures one batch run.
type Options struct {
	Input        string
	Output       string
	Model        string
	Language     string
	Device       device.Preference
	Format       output.Format
	SkipExisting bool
	Workers      int

	// CUDAKeywords overrides the failure-signature list; empty uses defaults.
	CUDAKeywords []string
}

// Controller discovers inputs, loads the model once, and fans files out to
// a bounded worker pool.
type Controller struct {
	resolver *device.Resolver
	loader   *transcriber.Loader
}

// New builds a controller. Each Run owns its model handle; nothing is shared
// between runs, so concurrent invocations are independent.
func New(resolver *device.Resolver, loader *transcriber.Loader) *Controller {
	return &Controller{resolver: resolver, loader: loader}
}

// Run executes a whole batch and returns one outcome per attempted file.
// The returned error is non-nil only for fatal conditions: bad paths, model
// load failure, or a mid-batch reload failure. Per-file failures land in
// the outcome list and never abort the run.
func (c *Controller) Run(ctx context.Context, opts Options, listen Listener) ([]FileOutcome, error) {
	inputInfo, err := os.Stat(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("input path is not accessible: %s", opts.Input)
	}
	if !inputInfo.IsDir() && !media.IsMediaFile(opts.Input) {
		return nil, fmt.Errorf("input file is not a supported media type: %s", opts.Input)
	}
	if err := os.MkdirAll(opts.Output, 0o755); err != nil {
		listen.emit(Event{Kind: EventError, Message: fmt.Sprintf("cannot create output directory: %v", err)})
		return nil, fmt.Errorf("cannot create output directory %s: %w", opts.Output, err)
	}

	model := opts.Model
	if model == "" {
		model = transcriber.DefaultModel
	}

	dev := c.resolver.Resolve(opts.Device)
	handle, err := c.loader.Load(model, dev)
	if err != nil {
		listen.emit(Event{Kind: EventError, Message: err.Error()})
		return []FileOutcome{}, err
	}
	defer handle.Close()

	var files []media.File
	if inputInfo.IsDir() {
		files, err = media.FindMedia(opts.Input)
		if err != nil {
			listen.emit(Event{Kind: EventError, Message: fmt.Sprintf("failed to scan input directory: %v", err)})
			return []FileOutcome{}, err
		}
	} else {
		files = []media.File{media.Single(opts.Input)}
	}

	if len(files) == 0 {
		log.Printf("batch: no media files found under %s", opts.Input)
		listen.emit(Event{Kind: EventComplete})
		return []FileOutcome{}, nil
	}
	log.Printf("batch: found %d media file(s), model=%s device=%s format=%s",
		len(files), model, handle.Device(), opts.Format)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	sess := newSession(c.loader, handle, model, opts.Language, opts.CUDAKeywords)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []FileOutcome
		fatal    error
	)
	sem := make(chan struct{}, workers)

	total := len(files)
	cancelled := false

dispatch:
	for i, file := range files {
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case <-runCtx.Done():
			break dispatch
		default:
		}

		listen.emit(Event{Kind: EventProgress, Index: i + 1, Total: total, Label: file.RelPath})

		sem <- struct{}{}
		wg.Add(1)
		go func(index int, file media.File) {
			defer wg.Done()
			defer func() { <-sem }()

			outPath := outputPath(opts.Output, file.RelPath, opts.Format)
			outcome, err := sess.processFile(runCtx, file, outPath, opts.Format, opts.SkipExisting)

			mu.Lock()
			outcomes = append(outcomes, outcome)
			if err != nil && fatal == nil {
				fatal = err
			}
			mu.Unlock()

			if err != nil {
				// Reload failure: stop dispatching, the batch cannot continue.
				cancel()
				return
			}

			status := "done"
			if !outcome.Success {
				status = "failed: " + outcome.Error
			}
			listen.emit(Event{Kind: EventProgress, Index: index + 1, Total: total, Label: file.RelPath, Message: status})
		}(i, file)
	}

	wg.Wait()

	switch {
	case fatal != nil:
		listen.emit(Event{Kind: EventError, Message: fatal.Error()})
		return outcomes, fatal
	case cancelled || ctx.Err() != nil:
		listen.emit(Event{Kind: EventCancelled})
		return outcomes, nil
	default:
		listen.emit(Event{Kind: EventComplete})
		return outcomes, nil
	}
}

// outputPath mirrors the input's relative location under the output root
// and swaps the extension for the format's.
func outputPath(outputRoot, relPath string, format output.Format) string {
	base := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.Join(outputRoot, base+"."+format.Extension())
}
