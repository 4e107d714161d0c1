package transcriber

import (
	"fmt"
	"log"

	"github.com/batchscribe/batchscribe/internal/core/device"
)

// LoadError is the terminal model-load failure: the model could not be
// loaded on the requested device nor, when applicable, on the CPU fallback.
type LoadError struct {
	Model    string
	Primary  error
	Fallback error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("failed to load model %q: %v", e.Model, e.Primary)
	if hint := Hint(Classify(e.Primary.Error())); hint != "" {
		msg += " (" + hint + ")"
	}
	if e.Fallback != nil {
		msg += fmt.Sprintf("; CPU fallback also failed: %v", e.Fallback)
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Primary }

// Loader loads a model on a device, demoting to CPU once when a CUDA load
// fails. The handle it returns is bound to whichever device actually
// succeeded.
type Loader struct {
	backend Backend
}

// NewLoader wraps a backend.
func NewLoader(backend Backend) *Loader {
	return &Loader{backend: backend}
}

// Load attempts the requested device first. A CUDA failure triggers one CPU
// retry; a CPU failure (direct or fallback) is terminal and reported with
// both error texts.
func (l *Loader) Load(model string, dev device.Choice) (Handle, error) {
	handle, err := l.backend.Load(model, dev)
	if err == nil {
		log.Printf("transcriber: loaded model %q on %s", model, handle.Device())
		return handle, nil
	}

	if dev != device.CUDA {
		return nil, &LoadError{Model: model, Primary: err}
	}

	log.Printf("transcriber: failed to load model %q on cuda: %v", model, err)
	if hint := Hint(Classify(err.Error())); hint != "" {
		log.Printf("transcriber: %s", hint)
	}
	log.Printf("transcriber: retrying model load on cpu")

	handle, cpuErr := l.backend.Load(model, device.CPU)
	if cpuErr != nil {
		return nil, &LoadError{Model: model, Primary: err, Fallback: cpuErr}
	}
	log.Printf("transcriber: loaded model %q on cpu after cuda failure", model)
	return handle, nil
}
