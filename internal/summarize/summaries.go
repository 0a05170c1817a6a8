package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SummaryMap maps relative file paths to summaries. Every access is
// serialized and a key, once set, is never overwritten.
type SummaryMap struct {
	mu sync.Mutex
	m  map[string]string
}

// NewSummaryMap returns a map seeded with a copy of initial.
func NewSummaryMap(initial map[string]string) *SummaryMap {
	m := make(map[string]string, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	return &SummaryMap{m: m}
}

// LoadSummaryMap reads a persisted map. A missing file yields an empty map.
func LoadSummaryMap(path string) (*SummaryMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSummaryMap(nil), nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return NewSummaryMap(m), nil
}

// Has reports whether key is present.
func (s *SummaryMap) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok
}

// Get returns the summary stored under key.
func (s *SummaryMap) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// Len returns the number of entries.
func (s *SummaryMap) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// SetIfAbsent stores value under key unless the key is present. Once ctx is
// done the write is refused with ctx's error, so a cancelled task never
// mutates the map.
func (s *SummaryMap) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := s.m[key]; ok {
		return false, nil
	}
	s.m[key] = value
	return true, nil
}

// Snapshot returns a copy of the entries.
func (s *SummaryMap) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// Save writes the map as indented JSON.
func (s *SummaryMap) Save(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
