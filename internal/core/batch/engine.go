package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/batchscribe/batchscribe/internal/core/device"
	"github.com/batchscribe/batchscribe/internal/core/media"
	"github.com/batchscribe/batchscribe/internal/core/output"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

// session holds the state shared by all workers of one batch run: the loaded
// model handle and the one-way device demotion flag. Demotion is monotonic;
// once any file trips it, every later dispatch and retry runs on CPU.
type session struct {
	loader   *transcriber.Loader
	model    string
	language string
	keywords []string

	demoted atomic.Bool

	mu     sync.Mutex
	handle transcriber.Handle
}

func newSession(loader *transcriber.Loader, handle transcriber.Handle, model, language string, keywords []string) *session {
	s := &session{
		loader:   loader,
		model:    model,
		language: language,
		keywords: keywords,
		handle:   handle,
	}
	if handle.Device() == device.CPU {
		s.demoted.Store(true)
	}
	return s
}

// currentHandle returns the shared handle, reloading it on CPU first when a
// demotion happened while the handle was still bound to CUDA. A reload
// failure is fatal for the whole batch.
func (s *session) currentHandle() (transcriber.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.demoted.Load() || s.handle.Device() == device.CPU {
		return s.handle, nil
	}

	log.Printf("batch: reloading model %q on cpu after device demotion", s.model)
	old := s.handle
	handle, err := s.loader.Load(s.model, device.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to reload model on cpu after demotion: %w", err)
	}
	_ = old.Close()
	s.handle = handle
	return s.handle, nil
}

// demote flips the shared device flag to CPU. The first caller wins;
// re-promotion never happens within a run.
func (s *session) demote() {
	if s.demoted.CompareAndSwap(false, true) {
		log.Printf("batch: cuda failure detected, demoting to cpu for the remainder of the run")
	}
}

// processFile runs the per-file state machine: skip-existing check,
// inference, optional one-shot CPU retry on a CUDA failure, then
// format-and-write. The returned error is non-nil only for batch-fatal
// conditions (model reload failure); everything else folds into the outcome.
func (s *session) processFile(ctx context.Context, file media.File, outPath string, format output.Format, skipExisting bool) (FileOutcome, error) {
	if skipExisting {
		if _, err := os.Stat(outPath); err == nil {
			log.Printf("batch: output already exists, skipping %s", file.RelPath)
			return FileOutcome{Path: file.Path, Success: true}, nil
		}
	}

	handle, err := s.currentHandle()
	if err != nil {
		return FileOutcome{Path: file.Path, Success: false, Error: err.Error()}, err
	}

	result, inferErr := handle.Transcribe(ctx, file.Path, s.language)
	if inferErr != nil {
		if handle.Device() != device.CUDA || !transcriber.IsCUDAFailure(inferErr.Error(), s.keywords) {
			return failedOutcome(file, inferErr), nil
		}

		log.Printf("batch: cuda failure on %s: %v", file.RelPath, inferErr)
		s.demote()

		handle, err = s.currentHandle()
		if err != nil {
			return FileOutcome{Path: file.Path, Success: false, Error: err.Error()}, err
		}

		log.Printf("batch: retrying %s on cpu", file.RelPath)
		result, inferErr = handle.Transcribe(ctx, file.Path, s.language)
		if inferErr != nil {
			return failedOutcome(file, inferErr), nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return FileOutcome{
			Path:    file.Path,
			Success: false,
			Error:   fmt.Sprintf("cannot create output directory for %s: %v", file.RelPath, err),
		}, nil
	}
	if err := output.Write(result, outPath, format); err != nil {
		return FileOutcome{
			Path:    file.Path,
			Success: false,
			Error:   fmt.Sprintf("failed to write transcript: %v", err),
		}, nil
	}

	log.Printf("batch: wrote %s", outPath)
	return FileOutcome{Path: file.Path, Success: true}, nil
}

// failedOutcome builds a failure record, appending a remediation hint when
// the error matches a known CUDA failure family.
func failedOutcome(file media.File, err error) FileOutcome {
	msg := err.Error()
	if hint := transcriber.Hint(transcriber.Classify(msg)); hint != "" {
		msg += " (" + hint + ")"
	}
	return FileOutcome{Path: file.Path, Success: false, Error: msg}
}
