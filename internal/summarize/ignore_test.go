package summarize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreRulesMatch(t *testing.T) {
	rules := NewIgnoreRules([]string{
		"# comment",
		"",
		"node_modules/",
		"/site",
		"*.py[cod]",
		"docs/_build",
		"!keep.me",
		"**/secrets.txt",
	})

	tests := []struct {
		rel  string
		want bool
	}{
		{"node_modules", true},
		{"web/node_modules", true},
		{"site", true},
		{"pkg/mod.pyc", true},
		{"pkg/mod.py", false},
		{"docs/_build", true},
		{"other/_build", false},
		{"keep.me", false},
		{"secrets.txt", true},
		{"a/b/secrets.txt", true},
		{".git", true},
		{"sub/.torch", true},
		{"main.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.Match(tt.rel))
		})
	}
}

func TestNewIgnoreRulesNormalizes(t *testing.T) {
	rules := NewIgnoreRules([]string{"/build/", "build", "  dist/  ", "# x", "!y"})
	assert.Equal(t, []string{"build", "dist"}, rules.patterns)
}

func TestLoadIgnoreRulesMergesWorkspaceFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("generated/\n*.tmp\n"), 0644))

	rules, err := LoadIgnoreRules(root)
	require.NoError(t, err)

	assert.True(t, rules.Match("generated"))
	assert.True(t, rules.Match("x/y.tmp"))
	// From the bundled list.
	assert.True(t, rules.Match("__pycache__"))
	assert.True(t, rules.Match("config.json"))
	assert.False(t, rules.Match("main.go"))
}

func TestLoadIgnoreRulesWithoutWorkspaceFile(t *testing.T) {
	rules, err := LoadIgnoreRules(t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, rules.patterns)
	assert.True(t, rules.Match(".DS_Store"))
}
