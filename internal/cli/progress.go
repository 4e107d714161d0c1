package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/batchscribe/batchscribe/internal/core/batch"
)

type batchEventMsg batch.Event

type batchDoneMsg struct{}

// progressModel renders the live state of a batch run: spinner, bar, counts
// and the file currently in flight.
type progressModel struct {
	bar     progress.Model
	spin    spinner.Model
	cancel  context.CancelFunc
	total   int
	done    int
	failed  int
	current string
	status  string
	width   int
}

func newProgressModel(cancel context.CancelFunc) progressModel {
	bar := progress.New(progress.WithDefaultGradient())
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	return progressModel{bar: bar, spin: spin, cancel: cancel}
}

func (m progressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 30
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.status = "cancelling, waiting for in-flight files..."
			m.cancel()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case batchEventMsg:
		return m.handleEvent(batch.Event(msg))

	case batchDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) handleEvent(e batch.Event) (tea.Model, tea.Cmd) {
	switch e.Kind {
	case batch.EventProgress:
		m.total = e.Total
		if e.Message == "" {
			m.current = e.Label
			return m, nil
		}
		// A second progress event for the same file carries its outcome.
		m.done++
		if strings.HasPrefix(e.Message, "failed") {
			m.failed++
		}
		return m, m.bar.SetPercent(float64(m.done) / float64(m.total))

	case batch.EventError:
		m.status = e.Message
	case batch.EventCancelled:
		m.status = "cancelled"
	}
	return m, nil
}

var (
	progressLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	progressFileStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	progressFailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func (m progressModel) View() string {
	var b strings.Builder

	b.WriteString(m.spin.View())
	b.WriteString(progressLabelStyle.Render(fmt.Sprintf(" transcribing %d/%d ", m.done, m.total)))
	if m.failed > 0 {
		b.WriteString(progressFailStyle.Render(fmt.Sprintf("(%d failed) ", m.failed)))
	}
	b.WriteString("\n")
	b.WriteString(m.bar.View())
	b.WriteString("\n")
	if m.current != "" {
		b.WriteString(progressFileStyle.Render("  " + m.current))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(progressFailStyle.Render("  " + m.status))
		b.WriteString("\n")
	}
	return b.String()
}

// runWithProgressTUI drives a batch run behind a bubbletea progress view.
// The run itself happens in a goroutine; events are forwarded as messages.
func runWithProgressTUI(ctx context.Context, ctrl *batch.Controller, opts batch.Options) ([]batch.FileOutcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(cancel))

	var outcomes []batch.FileOutcome
	var runErr error
	go func() {
		outcomes, runErr = ctrl.Run(runCtx, opts, func(e batch.Event) {
			p.Send(batchEventMsg(e))
		})
		p.Send(batchDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		return outcomes, err
	}
	return outcomes, runErr
}
