package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestProgressModelUpdate(t *testing.T) {
	m := NewProgressModel("Learning", 4, 1)

	next, cmd := m.Update(progressMsg{completed: 3})
	assert.Nil(t, cmd)
	m = next.(ProgressModel)
	assert.Equal(t, 3, m.Completed())
	assert.Contains(t, m.View(), "3/4")

	next, _ = m.Update(progressMsg{completed: 9})
	m = next.(ProgressModel)
	assert.Equal(t, 4, m.Completed(), "completed is capped at total")
}

func TestProgressModelStop(t *testing.T) {
	m := NewProgressModel("Learning", 2, 2)
	next, cmd := m.Update(stopMsg{})
	assert.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	view := next.(ProgressModel).View()
	assert.True(t, strings.HasPrefix(view, "✓ "))
	assert.Contains(t, view, "2/2")
}

func TestProgressModelZeroTotal(t *testing.T) {
	m := NewProgressModel("Learning", 0, 0)
	assert.Contains(t, m.View(), "0/0")
}

func TestProgressReporterLifecycle(t *testing.T) {
	var buf bytes.Buffer
	r := NewProgressReporter(&buf, 75*time.Second)
	assert.Equal(t, "Learning workspace (max 1m15s)...", r.label)

	r.Start(3, 1)
	r.Update(2)
	r.Update(3)
	r.Stop()

	assert.Contains(t, buf.String(), "Learning workspace")

	// Stop without Start and a second Stop are no-ops.
	r.Stop()
	NewProgressReporter(&buf, time.Second).Stop()
}
