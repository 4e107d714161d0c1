package output

import (
	"log"
	"strings"
)

// Format is the closed set of transcript serializations.
type Format string

const (
	FormatTxt  Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
	FormatTSV  Format = "tsv"
)

// ParseFormat maps a format string to a Format. Unknown input falls back to
// txt with a logged warning; the boundary absorbs bad input so the writers
// never see it.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "txt", "":
		return FormatTxt
	case "srt":
		return FormatSRT
	case "vtt":
		return FormatVTT
	case "json":
		return FormatJSON
	case "tsv":
		return FormatTSV
	default:
		log.Printf("output: unsupported format %q, falling back to txt", s)
		return FormatTxt
	}
}

// Extension returns the file extension (without dot) for a format.
func (f Format) Extension() string {
	return string(f)
}
