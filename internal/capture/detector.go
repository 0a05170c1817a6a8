// Package capture turns the raw shell output stream into (command, output)
// pairs by detecting the point where the shell returns to its prompt.
package capture

import "bytes"

// Class is the classification of one chunk of shell output.
type Class int

const (
	ClassData Class = iota
	ClassNoise
	ClassSingleKeyEcho
	ClassPromptBoundary
)

func (c Class) String() string {
	switch c {
	case ClassNoise:
		return "noise"
	case ClassSingleKeyEcho:
		return "single_key_echo"
	case ClassPromptBoundary:
		return "prompt_boundary"
	default:
		return "data"
	}
}

const (
	esc       = 0x1b
	backspace = 0x08
)

// promptBoundary is carriage return + ESC: zsh redrawing its prompt.
var promptBoundary = []byte{'\r', esc}

// Detector classifies shell output chunks.
type Detector struct {
	noise [][]byte
}

// NewDetector builds a detector from noise sequences given without their
// leading ESC byte.
func NewDetector(noise []string) *Detector {
	d := &Detector{noise: make([][]byte, 0, len(noise))}
	for _, seq := range noise {
		if seq == "" {
			continue
		}
		d.noise = append(d.noise, append([]byte{esc}, seq...))
	}
	return d
}

// Classify applies, in order: single byte, decoration noise, prompt
// boundary, data.
func (d *Detector) Classify(chunk []byte) Class {
	switch {
	case len(chunk) == 1:
		return ClassSingleKeyEcho
	case d.isNoise(chunk):
		return ClassNoise
	case bytes.HasPrefix(chunk, promptBoundary):
		return ClassPromptBoundary
	default:
		return ClassData
	}
}

// isNoise matches ESC+sequence, optionally after a run of backspaces that
// zsh-autocomplete emits before redrawing.
func (d *Detector) isNoise(chunk []byte) bool {
	rest := bytes.TrimLeft(chunk, string([]byte{backspace}))
	if len(rest) == 0 || rest[0] != esc {
		return false
	}
	for _, seq := range d.noise {
		if bytes.HasPrefix(rest, seq) {
			return true
		}
	}
	return false
}
