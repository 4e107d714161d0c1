package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/batchscribe/batchscribe/internal/config"
	"github.com/batchscribe/batchscribe/internal/core/batch"
	"github.com/batchscribe/batchscribe/internal/core/device"
	outfmt "github.com/batchscribe/batchscribe/internal/core/output"
	"github.com/batchscribe/batchscribe/internal/core/remote"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
	"github.com/batchscribe/batchscribe/internal/server"
	"github.com/batchscribe/batchscribe/internal/version"
)

var (
	flagModel        string
	flagDevice       string
	flagFormat       string
	flagLanguage     string
	flagWorkers      int
	flagSkipExisting bool
	flagPush         string
	flagNoHistory    bool
	flagVerbose      bool
)

var rootCmd = &cobra.Command{
	Use:     "batchscribe <input> [output]",
	Short:   "Batch transcribe audio and video files with whisper.cpp",
	Version: version.Version,
	Long: `Transcribe a media file, or every media file under a directory,
using a local whisper.cpp model.

Input may be a single file or a directory; directories are scanned
recursively and the output directory mirrors their structure. When the
output argument is omitted, the configured output_dir is used.

GPU (CUDA) execution is used when available and falls back to CPU
automatically, both at model load and per file during the run.

Examples:
  batchscribe podcast.mp3
  batchscribe ./recordings ./transcripts --format srt
  batchscribe ./lectures out --model large-v3 --device cuda --workers 2
  batchscribe ./talks out --skip-existing --push nas`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
		out := ""
		if len(args) > 1 {
			out = args[1]
		}
		if err := runBatch(args[0], out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagModel, "model", "", "model to use (default from config, base.en)")
	rootCmd.Flags().StringVar(&flagDevice, "device", "", "execution device: auto, cuda, cpu")
	rootCmd.Flags().StringVarP(&flagFormat, "format", "f", "", "output format: txt, srt, vtt, json, tsv")
	rootCmd.Flags().StringVarP(&flagLanguage, "language", "l", "", "language code (e.g. en, zh, ja) or auto")
	rootCmd.Flags().IntVarP(&flagWorkers, "workers", "w", 0, "number of files transcribed in parallel")
	rootCmd.Flags().BoolVar(&flagSkipExisting, "skip-existing", false, "skip files whose transcript already exists")
	rootCmd.Flags().StringVar(&flagPush, "push", "", "upload transcripts to a configured WebDAV remote after the run")
	rootCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "do not record this run in history")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "print diagnostic logs")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

// setupLogging silences package diagnostics unless --verbose is set.
func setupLogging() {
	if flagVerbose {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}
}

func runBatch(input, outputDir string) error {
	setupLogging()
	cfg := config.LoadOrDefault()

	opts, err := buildOptions(cfg, input, outputDir)
	if err != nil {
		return err
	}

	if flagPush != "" && cfg.GetWebDAVServer(flagPush) == nil {
		return fmt.Errorf("webdav remote %q is not configured; add it with `batchscribe config webdav add %s`", flagPush, flagPush)
	}

	backend := transcriber.NewWhisperBackend(cfg.WhisperBinary, cfg.FFmpeg, cfg.ModelsDir)
	ctrl := batch.New(device.NewResolver(), transcriber.NewLoader(backend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	var outcomes []batch.FileOutcome
	var runErr error
	if term.IsTerminal(int(os.Stdout.Fd())) {
		outcomes, runErr = runWithProgressTUI(ctx, ctrl, opts)
	} else {
		outcomes, runErr = ctrl.Run(ctx, opts, lineProgress())
	}

	if !flagNoHistory {
		recordHistory(cfg, opts, outcomes, startedAt, runErr)
	}

	if runErr != nil {
		return runErr
	}

	printSummary(outcomes)

	if flagPush != "" && len(outcomes) > 0 {
		if err := pushTranscripts(ctx, cfg, flagPush, opts.Output); err != nil {
			return fmt.Errorf("transcription finished but upload failed: %w", err)
		}
	}

	// Per-file failures are reported in the summary, not via exit code.
	return nil
}

// buildOptions merges flags over config defaults.
func buildOptions(cfg *config.Config, input, outputDir string) (batch.Options, error) {
	deviceStr := flagDevice
	if deviceStr == "" {
		deviceStr = cfg.Device
	}
	pref, err := device.ParsePreference(deviceStr)
	if err != nil {
		return batch.Options{}, err
	}

	formatStr := flagFormat
	if formatStr == "" {
		formatStr = cfg.Format
	}

	model := flagModel
	if model == "" {
		model = cfg.Model
	}
	language := flagLanguage
	if language == "" {
		language = cfg.Language
	}
	workers := flagWorkers
	if workers == 0 {
		workers = cfg.Workers
	}
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}

	return batch.Options{
		Input:        input,
		Output:       outputDir,
		Model:        model,
		Language:     language,
		Device:       pref,
		Format:       outfmt.ParseFormat(formatStr),
		SkipExisting: flagSkipExisting || cfg.SkipExisting,
		Workers:      workers,
		CUDAKeywords: cfg.CUDAErrorKeywords,
	}, nil
}

// lineProgress prints one line per event for non-TTY runs.
func lineProgress() batch.Listener {
	return func(e batch.Event) {
		switch e.Kind {
		case batch.EventProgress:
			if e.Message != "" {
				fmt.Printf("[%d/%d] %s: %s\n", e.Index, e.Total, e.Label, e.Message)
			} else {
				fmt.Printf("[%d/%d] %s\n", e.Index, e.Total, e.Label)
			}
		case batch.EventError:
			fmt.Fprintf(os.Stderr, "Error: %s\n", e.Message)
		case batch.EventCancelled:
			fmt.Println("Cancelled.")
		}
	}
}

// printSummary prints the end-of-run counts and any per-file failures.
func printSummary(outcomes []batch.FileOutcome) {
	succeeded, failed := 0, 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}

	fmt.Println("----------------------------------------")
	color.Green("Completed: %d/%d", succeeded, len(outcomes))
	if failed > 0 {
		color.Red("Failed: %d", failed)
		fmt.Println("\nFailed files:")
		for _, o := range outcomes {
			if !o.Success {
				fmt.Printf("  - %s\n", o.Path)
				color.Yellow("    %s", o.Error)
			}
		}
	}
}

// recordHistory stores the run in the sqlite history database. History is
// best effort; failures are logged, never fatal.
func recordHistory(cfg *config.Config, opts batch.Options, outcomes []batch.FileOutcome, startedAt time.Time, runErr error) {
	db, err := server.NewHistoryDB()
	if err != nil {
		log.Printf("history: %v", err)
		return
	}
	defer db.Close()

	run := &server.RunRecord{
		Input:     opts.Input,
		Output:    opts.Output,
		Model:     opts.Model,
		Device:    flagDevice,
		Format:    string(opts.Format),
		StartedAt: startedAt.Unix(),
	}
	if run.Device == "" {
		run.Device = cfg.Device
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := db.RecordRun(run, outcomes); err != nil {
		log.Printf("history: failed to record run: %v", err)
	}
}

// pushTranscripts uploads the output tree to the named WebDAV remote.
func pushTranscripts(ctx context.Context, cfg *config.Config, name, outputDir string) error {
	srv := cfg.GetWebDAVServer(name)
	if srv == nil {
		return fmt.Errorf("webdav remote %q is not configured", name)
	}
	up, err := remote.NewUploader(*srv)
	if err != nil {
		return err
	}

	fmt.Printf("Uploading transcripts to %s...\n", name)
	n, err := up.UploadTree(ctx, outputDir)
	if err != nil {
		return err
	}
	color.Green("Uploaded %d file(s) to %s", n, name)
	return nil
}
