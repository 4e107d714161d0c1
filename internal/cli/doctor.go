package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/batchscribe/batchscribe/internal/config"
	"github.com/batchscribe/batchscribe/internal/core/device"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the local transcription setup",
	Long: `Check that the external tools, models and devices batchscribe needs
are present, and report what a run would use.

Examples:
  batchscribe doctor`,
	Run: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) {
	// Doctor wants the device probes' diagnostics visible.
	flagVerbose = true
	setupLogging()

	cfg := config.LoadOrDefault()
	ok := color.GreenString("ok")
	missing := color.RedString("missing")

	fmt.Println("batchscribe doctor")
	fmt.Println()

	// Config
	if config.Exists() {
		fmt.Printf("  config          %s  %s\n", ok, config.SavePath())
	} else {
		fmt.Printf("  config          %s  (defaults in use, save with `batchscribe config init`)\n", color.YellowString("none"))
	}

	// whisper-cli
	binary := cfg.WhisperBinary
	if binary == "" {
		if path, err := exec.LookPath("whisper-cli"); err == nil {
			binary = path
		}
	}
	if binary != "" {
		fmt.Printf("  whisper-cli     %s  %s\n", ok, binary)
	} else {
		fmt.Printf("  whisper-cli     %s  install whisper.cpp or set whisper_binary in the config\n", missing)
	}

	// ffmpeg
	ffmpeg := cfg.FFmpeg
	if ffmpeg == "" {
		if path, err := exec.LookPath("ffmpeg"); err == nil {
			ffmpeg = path
		}
	}
	if ffmpeg != "" {
		fmt.Printf("  ffmpeg          %s  %s\n", ok, ffmpeg)
	} else {
		fmt.Printf("  ffmpeg          %s  required to decode media into audio\n", missing)
	}

	// Models
	dir := modelsDir()
	mm := transcriber.NewModelManager(dir)
	downloaded := mm.ListDownloadedModels()
	if len(downloaded) > 0 {
		fmt.Printf("  models          %s  %d in %s\n", ok, len(downloaded), dir)
	} else {
		fmt.Printf("  models          %s  download one with `batchscribe models download %s`\n",
			missing, transcriber.DefaultModel)
	}
	if !mm.IsModelDownloaded(cfg.Model) {
		fmt.Printf("                  default model %q is not downloaded\n", cfg.Model)
	}

	// Device
	fmt.Println()
	fmt.Println("  device probe:")
	choice := device.NewResolver().Resolve(device.PreferAuto)
	fmt.Println()
	if choice == device.CUDA {
		fmt.Printf("  device          %s  CUDA\n", ok)
	} else {
		fmt.Printf("  device          %s  CPU\n", ok)
	}

	// Output directory
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fmt.Printf("  output dir      %s  %s: %v\n", missing, cfg.OutputDir, err)
	} else {
		fmt.Printf("  output dir      %s  %s\n", ok, cfg.OutputDir)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
