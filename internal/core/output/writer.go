package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

// Write serializes a transcription result to path in the given format.
// The parent directory must already exist; callers own directory layout.
func Write(result *transcriber.Result, path string, format Format) error {
	var content []byte
	var err error

	switch format {
	case FormatSRT:
		content = []byte(ToSRT(result.Segments))
	case FormatVTT:
		content = []byte(ToVTT(result.Segments))
	case FormatJSON:
		content, err = json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
		content = append(content, '\n')
	case FormatTSV:
		content = []byte(ToTSV(result.Segments))
	default:
		content = []byte(result.Text)
	}

	return os.WriteFile(path, content, 0o644)
}

// ToSRT converts segments to SubRip format: 1-based sequence number,
// comma-millisecond timestamps with hours always present, blank line
// between blocks.
func ToSRT(segments []transcriber.Segment) string {
	var b strings.Builder
	index := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		index++
		b.WriteString(fmt.Sprintf("%d\n", index))
		b.WriteString(fmt.Sprintf("%s --> %s\n", formatTimestamp(seg.Start, ","), formatTimestamp(seg.End, ",")))
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// ToVTT converts segments to WebVTT: header plus dot-millisecond cues.
func ToVTT(segments []transcriber.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s --> %s\n", formatTimestamp(seg.Start, "."), formatTimestamp(seg.End, ".")))
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// ToTSV converts segments to a tab-separated table with a header row and
// two-decimal second offsets.
func ToTSV(segments []transcriber.Segment) string {
	var b strings.Builder
	b.WriteString("start\tend\ttext\n")
	for _, seg := range segments {
		b.WriteString(fmt.Sprintf("%.2f\t%.2f\t%s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text)))
	}
	return b.String()
}

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm. Hours are always
// included; SRT wants a comma separator, VTT a dot.
func formatTimestamp(seconds float64, sep string) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000.0 + 0.5)
	h := millis / 3_600_000
	millis %= 3_600_000
	m := millis / 60_000
	millis %= 60_000
	s := millis / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}
