package main

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"log"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/batchscribe/batchscribe/internal/config"
	"github.com/batchscribe/batchscribe/internal/core/batch"
	"github.com/batchscribe/batchscribe/internal/core/device"
	"github.com/batchscribe/batchscribe/internal/core/output"
	"github.com/batchscribe/batchscribe/internal/core/transcriber"
)

// forcedVariant wraps a theme and forces a specific variant.
type forcedVariant struct {
	fyne.Theme
	variant fyne.ThemeVariant
}

func (f *forcedVariant) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	return f.Theme.Color(name, f.variant)
}

func main() {
	log.SetOutput(io.Discard)

	a := app.New()
	a.Settings().SetTheme(&forcedVariant{Theme: theme.DefaultTheme(), variant: theme.VariantDark})
	w := a.NewWindow("Batchscribe")

	cfg := config.LoadOrDefault()

	title := widget.NewLabel("Batchscribe")
	title.TextStyle = fyne.TextStyle{Bold: true}

	inputEntry := widget.NewEntry()
	inputEntry.SetPlaceHolder("Input file or directory...")
	inputBtn := widget.NewButton("Browse", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err == nil && uri != nil {
				inputEntry.SetText(uri.Path())
			}
		}, w)
	})

	outputEntry := widget.NewEntry()
	outputEntry.SetPlaceHolder("Output directory...")
	outputEntry.SetText(cfg.OutputDir)
	outputBtn := widget.NewButton("Browse", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err == nil && uri != nil {
				outputEntry.SetText(uri.Path())
			}
		}, w)
	})

	modelNames := make([]string, 0, len(transcriber.Models))
	for _, m := range transcriber.Models {
		modelNames = append(modelNames, m.Name)
	}
	modelSelect := widget.NewSelect(modelNames, nil)
	modelSelect.SetSelected(cfg.Model)

	formatSelect := widget.NewSelect([]string{"txt", "srt", "vtt", "json", "tsv"}, nil)
	formatSelect.SetSelected(cfg.Format)

	deviceSelect := widget.NewSelect([]string{"auto", "cuda", "cpu"}, nil)
	deviceSelect.SetSelected(cfg.Device)

	bar := widget.NewProgressBar()
	status := widget.NewLabel("")
	status.Wrapping = fyne.TextWrapWord
	logView := widget.NewLabel("")
	logView.Wrapping = fyne.TextWrapWord

	var startBtn *widget.Button
	var cancelRun context.CancelFunc

	cancelBtn := widget.NewButton("Cancel", func() {
		if cancelRun != nil {
			cancelRun()
		}
	})
	cancelBtn.Disable()

	startBtn = widget.NewButton("Transcribe", func() {
		input := strings.TrimSpace(inputEntry.Text)
		if input == "" {
			dialog.ShowError(fmt.Errorf("choose an input file or directory"), w)
			return
		}
		outDir := strings.TrimSpace(outputEntry.Text)
		if outDir == "" {
			outDir = cfg.OutputDir
		}

		pref, err := device.ParsePreference(deviceSelect.Selected)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}

		opts := batch.Options{
			Input:        input,
			Output:       outDir,
			Model:        modelSelect.Selected,
			Language:     cfg.Language,
			Device:       pref,
			Format:       output.ParseFormat(formatSelect.Selected),
			Workers:      cfg.Workers,
			CUDAKeywords: cfg.CUDAErrorKeywords,
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancelRun = cancel

		startBtn.Disable()
		cancelBtn.Enable()
		bar.SetValue(0)
		status.SetText("Starting...")
		logView.SetText("")

		backend := transcriber.NewWhisperBackend(cfg.WhisperBinary, cfg.FFmpeg, cfg.ModelsDir)
		ctrl := batch.New(device.NewResolver(), transcriber.NewLoader(backend))

		go func() {
			defer cancel()
			done := 0
			outcomes, runErr := ctrl.Run(ctx, opts, func(e batch.Event) {
				fyne.Do(func() {
					switch e.Kind {
					case batch.EventProgress:
						if e.Message == "" {
							status.SetText(fmt.Sprintf("[%d/%d] %s", e.Index, e.Total, e.Label))
							return
						}
						done++
						if e.Total > 0 {
							bar.SetValue(float64(done) / float64(e.Total))
						}
						logView.SetText(logView.Text + fmt.Sprintf("%s: %s\n", e.Label, e.Message))
					case batch.EventCancelled:
						status.SetText("Cancelled")
					}
				})
			})

			fyne.Do(func() {
				startBtn.Enable()
				cancelBtn.Disable()
				if runErr != nil {
					status.SetText("Failed")
					dialog.ShowError(runErr, w)
					return
				}
				succeeded, failed := 0, 0
				for _, o := range outcomes {
					if o.Success {
						succeeded++
					} else {
						failed++
					}
				}
				status.SetText(fmt.Sprintf("Done: %d succeeded, %d failed", succeeded, failed))
			})
		}()
	})

	form := container.NewVBox(
		title,
		widget.NewSeparator(),
		container.NewBorder(nil, nil, widget.NewLabel("Input"), inputBtn, inputEntry),
		container.NewBorder(nil, nil, widget.NewLabel("Output"), outputBtn, outputEntry),
		container.NewGridWithColumns(3,
			container.NewVBox(widget.NewLabel("Model"), modelSelect),
			container.NewVBox(widget.NewLabel("Format"), formatSelect),
			container.NewVBox(widget.NewLabel("Device"), deviceSelect),
		),
		container.NewGridWithColumns(2, startBtn, cancelBtn),
		widget.NewSeparator(),
		bar,
		status,
		logView,
	)

	w.SetContent(container.NewPadded(form))
	w.Resize(fyne.NewSize(720, 540))
	w.ShowAndRun()
}
