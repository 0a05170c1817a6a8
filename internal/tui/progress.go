// Package tui renders the workspace-learning progress display with Bubble Tea.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/torch/internal/logging"
)

var log = logging.New("tui")

const barWidth = 30

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))

	barDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	barTodoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type (
	progressMsg struct{ completed int }
	stopMsg     struct{}
)

// ProgressModel shows a spinner, a bar and a completed/total counter.
type ProgressModel struct {
	spinner   spinner.Model
	label     string
	total     int
	completed int
	done      bool
}

// NewProgressModel creates the model for total tasks.
func NewProgressModel(label string, total, completed int) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return ProgressModel{spinner: s, label: label, total: total, completed: completed}
}

// Init starts the spinner.
func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles progress, stop and spinner messages.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.completed = msg.completed
		if m.completed > m.total {
			m.completed = m.total
		}
		return m, nil
	case stopMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders one line.
func (m ProgressModel) View() string {
	filled := 0
	if m.total > 0 {
		filled = barWidth * m.completed / m.total
	}
	bar := barDoneStyle.Render(strings.Repeat("━", filled)) +
		barTodoStyle.Render(strings.Repeat("━", barWidth-filled))

	icon := m.spinner.View()
	if m.done {
		icon = "✓"
	}
	return fmt.Sprintf("%s %s %s %s\n",
		icon,
		labelStyle.Render(m.label),
		bar,
		countStyle.Render(fmt.Sprintf("%d/%d", m.completed, m.total)))
}

// Completed returns the completed count.
func (m ProgressModel) Completed() int {
	return m.completed
}

// ProgressReporter runs a ProgressModel program for the duration of an
// escalated wait.
type ProgressReporter struct {
	out   io.Writer
	label string

	mu      sync.Mutex
	program *tea.Program
	exited  chan struct{}
}

// NewProgressReporter writes to out (stdout when nil). The hard timeout is
// shown in the label.
func NewProgressReporter(out io.Writer, hardTimeout time.Duration) *ProgressReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ProgressReporter{
		out:   out,
		label: fmt.Sprintf("Learning workspace (max %s)...", hardTimeout.Round(time.Second)),
	}
}

// Start launches the display.
func (r *ProgressReporter) Start(total, completed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return
	}

	p := tea.NewProgram(
		NewProgressModel(r.label, total, completed),
		tea.WithInput(nil),
		tea.WithOutput(r.out),
		tea.WithoutSignalHandler(),
	)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		if _, err := p.Run(); err != nil {
			log.Warn("progress_display_failed", nil, err)
		}
	}()
	r.program = p
	r.exited = exited
}

// Update reports a new completed count.
func (r *ProgressReporter) Update(completed int) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(progressMsg{completed: completed})
	}
}

// Stop ends the display and waits for the final frame to be written.
func (r *ProgressReporter) Stop() {
	r.mu.Lock()
	p, exited := r.program, r.exited
	r.program, r.exited = nil, nil
	r.mu.Unlock()
	if p == nil {
		return
	}
	p.Send(stopMsg{})
	<-exited
}
