// Package logging provides structured JSON logging for torch components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; ok {
		return l
	}
	return LevelInfo
}

// Event represents a structured log event
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Event     string                 `json:"event"`
	Session   string                 `json:"session,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// sink is the process-wide destination shared by every Logger.
type sink struct {
	mu      sync.Mutex
	out     io.Writer
	min     Level
	session string
}

var std = &sink{
	out:     os.Stderr,
	min:     LevelInfo,
	session: uuid.NewString(),
}

// SetOutput redirects all loggers. While the terminal is in raw mode stderr
// is shared with the child shell, so the CLI points this at a log file.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out = w
}

// SetLevel sets the minimum level written.
func SetLevel(l Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.min = l
}

// SessionID returns the identifier stamped on every event of this process.
func SessionID() string {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.session
}

func (s *sink) write(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if levelRank[e.Level] < levelRank[s.min] {
		return
	}
	e.Session = s.session

	data, _ := json.Marshal(e)
	fmt.Fprintln(s.out, string(data))
}

// Logger provides structured logging
type Logger struct {
	component string
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component}
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]interface{}, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	std.write(e)
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}) {
	std.write(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	})
}
