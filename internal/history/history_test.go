package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty file", "", ""},
		{"single line", "ls -la\n", "ls -la"},
		{"trailing blank lines", "git status\nmake test\n\n  \n", "make test"},
		{"extended history", ": 1700000000:0;cd src\n: 1700000005:2;go test ./...\n", "go test ./..."},
		{"extended history without command separator", ": 1700000000:0\n", ": 1700000000:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".zsh_history")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			got, err := New(path).LastCommand()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLastCommandMissingFile(t *testing.T) {
	got, err := New(filepath.Join(t.TempDir(), "missing")).LastCommand()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppend(t *testing.T) {
	h := New(filepath.Join(t.TempDir(), ".zsh_history"))

	require.NoError(t, h.Append("ls"))
	require.NoError(t, h.Append("Why does the build fail?"))

	got, err := h.LastCommand()
	require.NoError(t, err)
	assert.Equal(t, "Why does the build fail?", got)

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "ls\nWhy does the build fail?\n", string(data))
}
