package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings tunes the scheduler and the interactive session.
type Settings struct {
	// PoolSize bounds concurrent summarization calls
	PoolSize int

	// MaxFiles aborts scheduling when the walk discovers more files
	MaxFiles int

	// InstantTimeout is the fast-path wait before progress is shown
	InstantTimeout time.Duration

	// HardTimeout is the deadline of the visible progress phase
	HardTimeout time.Duration

	// PollInterval is the liveness-check cadence of the session loop
	PollInterval time.Duration

	// BlockSize is the read size for pty and keyboard input
	BlockSize int

	// MaxFileTokens truncates file contents before summarization
	MaxFileTokens int

	// NoiseSequences are shell decoration sequences (without the leading ESC)
	// dropped from captured output
	NoiseSequences []string

	// ExitCommands are commands whose output is never captured
	ExitCommands []string
}

// DefaultNoiseSequences matches zsh-syntax-highlighting colors and
// zsh-autosuggestions cursor movements.
var DefaultNoiseSequences = []string{
	" ",
	"[0m",
	"[1m",
	"[4m",
	"[24m",
	"[31m",
	"[32m",
	"[33m",
	"[39m",
	"[90m",
	"[K",
	"[11D",
	"[13D",
	"[18D",
	"[?2",
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		PoolSize:       10,
		MaxFiles:       100,
		InstantTimeout: 500 * time.Millisecond,
		HardTimeout:    75 * time.Second,
		PollInterval:   500 * time.Millisecond,
		BlockSize:      1024,
		MaxFileTokens:  7500,
		NoiseSequences: append([]string(nil), DefaultNoiseSequences...),
		ExitCommands:   []string{"exit", "logout"},
	}
}

// settingsFile is the on-disk YAML shape. Durations are Go duration strings.
type settingsFile struct {
	PoolSize       *int     `yaml:"pool_size"`
	MaxFiles       *int     `yaml:"max_files"`
	InstantTimeout string   `yaml:"instant_timeout"`
	HardTimeout    string   `yaml:"hard_timeout"`
	PollInterval   string   `yaml:"poll_interval"`
	BlockSize      *int     `yaml:"block_size"`
	MaxFileTokens  *int     `yaml:"max_file_tokens"`
	NoiseSequences []string `yaml:"noise_sequences"`
	ExitCommands   []string `yaml:"exit_commands"`
}

// LoadSettings reads path over the defaults. A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}

	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}

	if f.PoolSize != nil {
		s.PoolSize = *f.PoolSize
	}
	if f.MaxFiles != nil {
		s.MaxFiles = *f.MaxFiles
	}
	if f.BlockSize != nil {
		s.BlockSize = *f.BlockSize
	}
	if f.MaxFileTokens != nil {
		s.MaxFileTokens = *f.MaxFileTokens
	}
	if len(f.NoiseSequences) > 0 {
		s.NoiseSequences = f.NoiseSequences
	}
	if len(f.ExitCommands) > 0 {
		s.ExitCommands = f.ExitCommands
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"instant_timeout", f.InstantTimeout, &s.InstantTimeout},
		{"hard_timeout", f.HardTimeout, &s.HardTimeout},
		{"poll_interval", f.PollInterval, &s.PollInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return s, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return s, s.Validate()
}

// Validate rejects settings the scheduler or session cannot run with.
func (s Settings) Validate() error {
	switch {
	case s.PoolSize < 1:
		return fmt.Errorf("pool_size must be at least 1, got %d", s.PoolSize)
	case s.MaxFiles < 1:
		return fmt.Errorf("max_files must be at least 1, got %d", s.MaxFiles)
	case s.BlockSize < 1:
		return fmt.Errorf("block_size must be at least 1, got %d", s.BlockSize)
	case s.InstantTimeout <= 0 || s.HardTimeout <= 0 || s.PollInterval <= 0:
		return errors.New("timeouts must be positive")
	}
	return nil
}
