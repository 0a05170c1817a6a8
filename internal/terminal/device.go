// Package terminal toggles the controlling terminal between raw pass-through
// and cooked mode for formatted output.
package terminal

import (
	"errors"
	"fmt"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when the file descriptor is not a terminal.
var ErrNotTerminal = errors.New("not a terminal")

// Device switches a terminal between raw mode and its saved settings.
type Device interface {
	// MakeRaw puts the terminal into raw mode.
	MakeRaw() error

	// Restore reapplies the settings captured when the device was opened.
	Restore() error
}

// FileDevice is a Device backed by a terminal file descriptor.
type FileDevice struct {
	fd    int
	saved *term.State
}

// OpenDevice captures the current settings of fd. The captured state is
// never replaced afterwards.
func OpenDevice(fd int) (*FileDevice, error) {
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.GetState(fd)
	if err != nil {
		return nil, fmt.Errorf("get terminal state: %w", err)
	}
	return &FileDevice{fd: fd, saved: state}, nil
}

// MakeRaw puts the terminal into raw mode. The state returned by x/term is
// discarded so the original settings stay the restore target.
func (d *FileDevice) MakeRaw() error {
	if _, err := term.MakeRaw(d.fd); err != nil {
		return fmt.Errorf("make raw: %w", err)
	}
	return nil
}

// Restore reapplies the saved settings.
func (d *FileDevice) Restore() error {
	if err := term.Restore(d.fd, d.saved); err != nil {
		return fmt.Errorf("restore terminal: %w", err)
	}
	return nil
}
