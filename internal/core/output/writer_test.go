package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

func sampleResult() *transcriber.Result {
	return &transcriber.Result{
		Text: "hello world",
		Segments: []transcriber.Segment{
			{Start: 0.0, End: 1.5, Text: "hello"},
			{Start: 1.5, End: 3.2, Text: "world"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
	}{
		{"srt", FormatSRT},
		{"SRT", FormatSRT},
		{"vtt", FormatVTT},
		{"json", FormatJSON},
		{"tsv", FormatTSV},
		{"txt", FormatTxt},
		{"", FormatTxt},
		{"docx", FormatTxt},
	}
	for _, tc := range cases {
		if got := ParseFormat(tc.in); got != tc.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestToSRT(t *testing.T) {
	got := ToSRT(sampleResult().Segments)
	want := "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n" +
		"2\n00:00:01,500 --> 00:00:03,200\nworld\n\n"
	if got != want {
		t.Errorf("ToSRT:\ngot  %q\nwant %q", got, want)
	}
}

func TestToSRTSkipsBlankSegments(t *testing.T) {
	segments := []transcriber.Segment{
		{Start: 0, End: 1, Text: "  "},
		{Start: 1, End: 2, Text: "kept"},
	}
	got := ToSRT(segments)
	if !strings.HasPrefix(got, "1\n") || !strings.Contains(got, "kept") {
		t.Errorf("blank segment should be skipped and numbering stay dense:\n%q", got)
	}
	if strings.Contains(got, "2\n00:") {
		t.Errorf("unexpected second block:\n%q", got)
	}
}

func TestToVTT(t *testing.T) {
	got := ToVTT(sampleResult().Segments)
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Fatalf("missing WEBVTT header:\n%q", got)
	}
	if !strings.Contains(got, "00:00:00.000 --> 00:00:01.500\nhello") {
		t.Errorf("missing first cue:\n%q", got)
	}
	if !strings.Contains(got, "00:00:01.500 --> 00:00:03.200\nworld") {
		t.Errorf("missing second cue:\n%q", got)
	}
}

func TestToTSV(t *testing.T) {
	got := ToTSV(sampleResult().Segments)
	want := "start\tend\ttext\n0.00\t1.50\thello\n1.50\t3.20\tworld\n"
	if got != want {
		t.Errorf("ToTSV:\ngot  %q\nwant %q", got, want)
	}
}

func TestFormatTimestampHourRollover(t *testing.T) {
	got := formatTimestamp(3725.043, ",")
	if got != "01:02:05,043" {
		t.Errorf("formatTimestamp(3725.043) = %q, want 01:02:05,043", got)
	}
}

func TestWriteTxt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := Write(sampleResult(), path, FormatTxt); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("txt content = %q, want full text verbatim", data)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := Write(sampleResult(), path, FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded transcriber.Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal written json: %v", err)
	}
	if decoded.Text != "hello world" || len(decoded.Segments) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Segments[1].End != 3.2 {
		t.Errorf("segment end = %v, want 3.2", decoded.Segments[1].End)
	}
	if !strings.Contains(string(data), `"start"`) {
		t.Errorf("json must preserve segment field names:\n%s", data)
	}
}

func TestWriteUnknownFormatFallsBackToTxt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.weird")
	format := ParseFormat("weird")
	if err := Write(sampleResult(), path, format); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "hello world" {
		t.Errorf("fallback content = %q, want txt content", data)
	}
}
