// Package render prints user-visible output around the raw-mode session.
// Every write happens inside the terminal's cooked mode so line endings and
// colors render normally.
package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/fatih/color"
)

// Cooker scopes a function inside cooked terminal mode.
type Cooker interface {
	WithCookedMode(fn func() error) error
}

// Printer writes formatted output. It is safe for concurrent use.
type Printer struct {
	out  io.Writer
	term Cooker

	mu       sync.Mutex
	spinning bool
}

// NewPrinter creates a Printer. With a nil Cooker output is written
// directly, which is what happens before the session enters raw mode.
func NewPrinter(out io.Writer, term Cooker) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out, term: term}
}

// Stdout returns a Printer on os.Stdout without mode switching.
func Stdout() *Printer {
	return NewPrinter(os.Stdout, nil)
}

// Print writes formatted text.
func (p *Printer) Print(format string, args ...any) error {
	return p.write(nil, fmt.Sprintf(format, args...))
}

// Println writes formatted text with newline.
func (p *Printer) Println(format string, args ...any) error {
	return p.write(nil, fmt.Sprintf(format, args...)+"\n")
}

// Info writes a default-colored line.
func (p *Printer) Info(format string, args ...any) error {
	return p.write(nil, fmt.Sprintf(format, args...)+"\n")
}

// Success writes a green line.
func (p *Printer) Success(format string, args ...any) error {
	return p.write(color.New(color.FgGreen), fmt.Sprintf(format, args...)+"\n")
}

// Warn writes a yellow line.
func (p *Printer) Warn(format string, args ...any) error {
	return p.write(color.New(color.FgYellow), fmt.Sprintf(format, args...)+"\n")
}

// Error writes a red line.
func (p *Printer) Error(format string, args ...any) error {
	return p.write(color.New(color.FgRed), fmt.Sprintf(format, args...)+"\n")
}

// Answer writes an assistant response framed by blank lines.
func (p *Printer) Answer(text string) error {
	return p.write(color.New(color.FgCyan), "\n"+strings.TrimSpace(text)+"\n\n")
}

// Spin shows a spinner labelled label while fn runs. fn may print through
// the same Printer; the spinner line is cleared before each write.
func (p *Printer) Spin(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	return p.cooked(func() error {
		stop := make(chan struct{})
		stopped := make(chan struct{})
		go p.spin(label, stop, stopped)
		defer func() {
			close(stop)
			<-stopped
		}()
		return fn(ctx)
	})
}

func (p *Printer) spin(label string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	frames := spinner.Dot.Frames
	interval := spinner.Dot.FPS
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	draw := func(i int) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.spinning = true
		fmt.Fprintf(p.out, "\r%s %s", color.MagentaString(frames[i%len(frames)]), label)
	}

	draw(0)
	for i := 1; ; i++ {
		select {
		case <-stop:
			p.mu.Lock()
			p.clearSpinner()
			p.mu.Unlock()
			return
		case <-ticker.C:
			draw(i)
		}
	}
}

// clearSpinner erases the spinner line. Callers hold mu.
func (p *Printer) clearSpinner() {
	if p.spinning {
		io.WriteString(p.out, "\r\x1b[K")
		p.spinning = false
	}
}

func (p *Printer) write(c *color.Color, text string) error {
	return p.cooked(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.clearSpinner()
		var err error
		if c == nil {
			_, err = io.WriteString(p.out, text)
		} else {
			_, err = c.Fprint(p.out, text)
		}
		return err
	})
}

func (p *Printer) cooked(fn func() error) error {
	if p.term == nil {
		return fn()
	}
	return p.term.WithCookedMode(fn)
}
