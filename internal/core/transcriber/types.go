package transcriber

import (
	"context"

	"github.com/batchscribe/batchscribe/internal/core/device"
)

// Segment is a time-bounded span of transcribed text. Start and End are
// offsets in seconds from the beginning of the media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the transcript for one media file.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// Handle is a loaded model bound to a device. One handle is shared across a
// whole batch; callers must read Device() back rather than assume the
// requested device was honored.
type Handle interface {
	Device() device.Choice
	Model() string
	Transcribe(ctx context.Context, mediaPath, language string) (*Result, error)
	Close() error
}

// Backend turns a model name and device into a usable Handle. The production
// backend execs a whisper.cpp binary; tests substitute fakes.
type Backend interface {
	Load(model string, dev device.Choice) (Handle, error)
}
