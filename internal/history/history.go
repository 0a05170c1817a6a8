// Package history reads and appends the shell history file of the session.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// File is a zsh history file.
type File struct {
	path string
	mu   sync.Mutex
}

// New returns a File for path. The file need not exist yet.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the history file location.
func (f *File) Path() string {
	return f.path
}

// LastCommand returns the last non-empty command, or "" when the history is
// empty or missing. Extended history lines (": <ts>:<elapsed>;cmd") are
// unwrapped.
func (f *File) LastCommand() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	var last string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read history: %w", err)
	}

	return parseLine(last), nil
}

// Append records a query so that the next boundary pairs it with its output.
func (f *File) Append(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintln(file, command); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// parseLine strips the zsh EXTENDED_HISTORY prefix.
func parseLine(line string) string {
	if !strings.HasPrefix(line, ": ") {
		return line
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
