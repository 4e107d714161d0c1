package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	outfmt "github.com/batchscribe/batchscribe/internal/core/output"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

var (
	convertTo     string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert <result.json>",
	Short: "Convert a JSON transcript to another format",
	Long: `Re-serialize a transcript saved with --format json into another
output format.

Supported output formats:
  txt - Plain text (no timestamps)
  srt - SubRip subtitle format
  vtt - WebVTT subtitle format
  tsv - Tab-separated table

Examples:
  batchscribe convert talk.json --to srt
  batchscribe convert talk.json --to vtt -o subtitles.vtt`,
	Args: cobra.ExactArgs(1),
	Run:  runConvert,
}

func runConvert(cmd *cobra.Command, args []string) {
	setupLogging()
	inputPath := args[0]

	if convertTo == "" {
		fmt.Fprintln(os.Stderr, "Error: --to is required")
		fmt.Fprintln(os.Stderr, "\nSupported formats: txt, srt, vtt, tsv")
		os.Exit(1)
	}
	to := strings.ToLower(strings.TrimSpace(convertTo))
	switch to {
	case "txt", "srt", "vtt", "tsv":
	case "json":
		fmt.Fprintln(os.Stderr, "Error: input is already json")
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported format %q\n", convertTo)
		fmt.Fprintln(os.Stderr, "Supported formats: txt, srt, vtt, tsv")
		os.Exit(1)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	var result transcriber.Result
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s is not a JSON transcript: %v\n", inputPath, err)
		os.Exit(1)
	}

	outputPath := convertOutput
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "." + to
	}

	if err := outfmt.Write(&result, outputPath, outfmt.ParseFormat(to)); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted to %s: %s\n", strings.ToUpper(to), outputPath)
}

func init() {
	convertCmd.Flags().StringVar(&convertTo, "to", "", "output format: txt, srt, vtt, tsv (required)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output file path")
	rootCmd.AddCommand(convertCmd)
}
