package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/batchscribe/batchscribe/internal/config"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

var modelsRemote bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List and manage whisper models",
	Long: `List downloaded models or models available for download.

Models are stored in ~/.config/batchscribe/models/ by default.

Examples:
  batchscribe models              # List downloaded models
  batchscribe models -r           # List models available for download
  batchscribe models download large-v3-turbo
  batchscribe models rm small`,
	Run: runModels,
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download <model>",
	Short: "Download a whisper model",
	Long: `Download a whisper.cpp model for local transcription.

Available models:
  tiny / tiny.en          (75MB)   - Fastest, basic quality
  base / base.en          (142MB)  - Good for quick drafts
  small / small.en        (466MB)  - Balanced for most uses
  medium / medium.en      (1.5GB)  - Higher accuracy
  large-v3                (2.9GB)  - Highest accuracy, slowest
  large-v3-turbo          (1.5GB)  - Near-large quality, much faster

Examples:
  batchscribe models download base.en
  batchscribe models download large-v3-turbo`,
	Args: cobra.ExactArgs(1),
	Run:  runModelsDownload,
}

var modelsRmCmd = &cobra.Command{
	Use:   "rm <model>",
	Short: "Remove a downloaded model",
	Args:  cobra.ExactArgs(1),
	Run:   runModelsRm,
}

func modelsDir() string {
	cfg := config.LoadOrDefault()
	if cfg.ModelsDir != "" {
		return cfg.ModelsDir
	}
	dir, err := transcriber.DefaultModelsDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return dir
}

func runModels(cmd *cobra.Command, args []string) {
	setupLogging()
	dir := modelsDir()
	mm := transcriber.NewModelManager(dir)

	if modelsRemote {
		fmt.Println("Available models:")
		fmt.Println()
		for _, m := range transcriber.Models {
			downloaded := ""
			if mm.IsModelDownloaded(m.Name) {
				downloaded = color.GreenString(" [downloaded]")
			}
			fmt.Printf("  %-16s %8s  %s%s\n", m.Name, m.Size, m.Description, downloaded)
		}
		fmt.Println()
		fmt.Println("Download a model:")
		fmt.Println("  batchscribe models download <model-name>")
		return
	}

	downloaded := mm.ListDownloadedModels()
	if len(downloaded) == 0 {
		fmt.Println("No models downloaded.")
		fmt.Println()
		fmt.Println("Download one:")
		fmt.Printf("  batchscribe models download %s\n", transcriber.DefaultModel)
		fmt.Println()
		fmt.Println("See available models:")
		fmt.Println("  batchscribe models -r")
		return
	}

	fmt.Println("Downloaded models:")
	fmt.Println()
	for _, name := range downloaded {
		if m := transcriber.GetModel(name); m != nil {
			fmt.Printf("  %-16s %8s  %s\n", m.Name, m.Size, m.Description)
		} else {
			fmt.Printf("  %s\n", name)
		}
	}
	fmt.Println()
	fmt.Printf("Models directory: %s\n", dir)
}

func runModelsDownload(cmd *cobra.Command, args []string) {
	setupLogging()
	name := args[0]

	model := transcriber.GetModel(name)
	if model == nil {
		fmt.Fprintf(os.Stderr, "Error: unknown model %q\n\n", name)
		fmt.Println("Available models:")
		for _, m := range transcriber.Models {
			fmt.Printf("  %-16s (%s) - %s\n", m.Name, m.Size, m.Description)
		}
		os.Exit(1)
	}

	mm := transcriber.NewModelManager(modelsDir())
	if mm.IsModelDownloaded(name) {
		fmt.Printf("Model %q is already downloaded.\n", name)
		fmt.Printf("Location: %s\n", mm.ModelPath(name))
		return
	}

	fmt.Printf("Downloading %s (%s)...\n", model.Name, model.Size)

	lastPercent := -1
	path, err := mm.DownloadModel(name, func(current, total int64) {
		if total <= 0 {
			return
		}
		percent := int(current * 100 / total)
		if percent != lastPercent && percent%5 == 0 {
			lastPercent = percent
			fmt.Printf("\r  %3d%% (%d/%d MB)", percent, current>>20, total>>20)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	color.Green("Download complete!")
	fmt.Printf("Location: %s\n", path)
}

func runModelsRm(cmd *cobra.Command, args []string) {
	name := args[0]
	mm := transcriber.NewModelManager(modelsDir())

	if !mm.IsModelDownloaded(name) {
		fmt.Fprintf(os.Stderr, "Error: model %q is not downloaded\n", name)
		os.Exit(1)
	}

	if err := os.Remove(mm.ModelPath(name)); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing model: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed model: %s\n", name)
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsRemote, "remote", "r", false, "list models available for download")

	modelsCmd.AddCommand(modelsDownloadCmd)
	modelsCmd.AddCommand(modelsRmCmd)
	rootCmd.AddCommand(modelsCmd)
}
