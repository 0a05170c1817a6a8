package capture

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/joss/torch/internal/logging"
)

// History supplies the most recently submitted command.
type History interface {
	LastCommand() (string, error)
}

// Sink receives captured (command, output) pairs.
type Sink interface {
	Append(command, output string) error
}

var log = logging.New("capture")

// Capture accumulates shell output between prompt boundaries and pairs it
// with the last submitted command.
type Capture struct {
	detector *Detector
	history  History
	sink     Sink
	exits    map[string]bool
	buf      bytes.Buffer
}

// New creates a Capture. Commands in exitCommands (case-insensitive) are
// never emitted.
func New(detector *Detector, history History, sink Sink, exitCommands []string) *Capture {
	exits := make(map[string]bool, len(exitCommands))
	for _, c := range exitCommands {
		exits[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return &Capture{
		detector: detector,
		history:  history,
		sink:     sink,
		exits:    exits,
	}
}

// Feed classifies chunk and updates the buffer. At a prompt boundary the
// buffer is always cleared, and at most one pair reaches the sink.
func (c *Capture) Feed(chunk []byte) (Class, error) {
	class := c.detector.Classify(chunk)

	switch class {
	case ClassData:
		c.buf.Write(chunk)
	case ClassPromptBoundary:
		return class, c.flush()
	}
	return class, nil
}

func (c *Capture) flush() error {
	output := c.buf.String()
	c.buf.Reset()

	command, err := c.history.LastCommand()
	if err != nil {
		return fmt.Errorf("read last command: %w", err)
	}
	command = strings.TrimSpace(command)

	if command == "" || c.exits[strings.ToLower(command)] || output == "" {
		log.Debug("boundary_discarded", map[string]interface{}{
			"command": command,
			"bytes":   len(output),
		})
		return nil
	}

	if err := c.sink.Append(command, output); err != nil {
		return fmt.Errorf("append capture: %w", err)
	}
	return nil
}
