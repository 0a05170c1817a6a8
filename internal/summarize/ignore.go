package summarize

import (
	"bufio"
	_ "embed"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joss/torch/internal/config"
)

//go:embed default.gitignore
var defaultIgnore string

// DefaultIgnore returns the bundled ignore list.
func DefaultIgnore() string {
	return defaultIgnore
}

// alwaysExcluded names are skipped regardless of ignore rules.
var alwaysExcluded = map[string]bool{
	".git":         true,
	config.DirName: true,
}

// IgnoreRules matches workspace entries against gitignore-style patterns.
// Patterns without a slash match any single path segment; patterns with a
// slash match the path relative to the workspace root. Negations are not
// supported and are skipped.
type IgnoreRules struct {
	patterns []string
}

// NewIgnoreRules builds rules from pattern lines, deduplicating them.
func NewIgnoreRules(lines []string) *IgnoreRules {
	seen := make(map[string]bool)
	r := &IgnoreRules{}
	for _, line := range lines {
		p := normalizePattern(line)
		if p == "" || seen[p] || !doublestar.ValidatePattern(p) {
			continue
		}
		seen[p] = true
		r.patterns = append(r.patterns, p)
	}
	return r
}

// LoadIgnoreRules merges <root>/.gitignore, when present, with the bundled list.
func LoadIgnoreRules(root string) (*IgnoreRules, error) {
	var lines []string

	f, err := os.Open(filepath.Join(root, ".gitignore"))
	switch {
	case err == nil:
		defer f.Close()
		ws, err := readLines(f)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ws...)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	def, _ := readLines(strings.NewReader(defaultIgnore))
	lines = append(lines, def...)
	return NewIgnoreRules(lines), nil
}

// Match reports whether the entry at rel (slash separated, relative to the
// workspace root) is ignored.
func (r *IgnoreRules) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	name := path.Base(rel)
	if alwaysExcluded[name] {
		return true
	}
	for _, p := range r.patterns {
		subject := name
		if strings.Contains(p, "/") {
			subject = rel
		}
		if ok, _ := doublestar.Match(p, subject); ok {
			return true
		}
	}
	return false
}

func normalizePattern(line string) string {
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") || strings.HasPrefix(p, "!") {
		return ""
	}
	p = strings.TrimLeft(p, "/")
	p = strings.TrimRight(p, "/")
	return p
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
