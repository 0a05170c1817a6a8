package terminal

import (
	"sync"

	"github.com/joss/torch/internal/logging"
)

// Mode is the current terminal mode.
type Mode int

const (
	ModeRaw Mode = iota
	ModeCooked
)

func (m Mode) String() string {
	if m == ModeCooked {
		return "cooked"
	}
	return "raw"
}

var log = logging.New("terminal")

// Controller owns the terminal mode for the lifetime of a session.
//
// WithCookedMode is reentrant: nested calls run their function without
// touching the device, and only the outermost call switches back to raw.
type Controller struct {
	dev Device

	mu       sync.Mutex
	mode     Mode
	depth    int
	switched bool // the outermost WithCookedMode left raw mode
	closed   bool
}

// NewController wraps dev. The terminal is assumed to be in its saved
// (cooked) state until EnterRaw is called.
func NewController(dev Device) *Controller {
	return &Controller{dev: dev, mode: ModeCooked}
}

// EnterRaw switches the terminal to raw mode.
func (c *Controller) EnterRaw() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dev.MakeRaw(); err != nil {
		return err
	}
	c.mode = ModeRaw
	return nil
}

// Mode reports the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// WithCookedMode runs fn with the terminal in cooked mode and puts it back
// into raw mode on every exit path, including a panic in fn.
func (c *Controller) WithCookedMode(fn func() error) error {
	c.acquire()
	defer c.release()
	return fn()
}

func (c *Controller) acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.depth++
	if c.depth > 1 || c.closed || c.mode == ModeCooked {
		return
	}
	if err := c.dev.Restore(); err != nil {
		log.Warn("cooked_mode_failed", nil, err)
		return
	}
	c.mode = ModeCooked
	c.switched = true
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.depth--
	if c.depth > 0 || !c.switched {
		return
	}
	c.switched = false
	if c.closed {
		return
	}
	if err := c.dev.MakeRaw(); err != nil {
		log.Warn("raw_mode_failed", nil, err)
		return
	}
	c.mode = ModeRaw
}

// Close restores the saved settings for good. Later WithCookedMode calls run
// their function without switching modes. A restore failure is logged and
// returned so the caller can tell the user to reset their terminal.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.mode = ModeCooked

	if err := c.dev.Restore(); err != nil {
		log.Warn("restore_failed", nil, err)
		return err
	}
	return nil
}
