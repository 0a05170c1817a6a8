package exec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSRunnerRun(t *testing.T) {
	if _, err := LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out, err := NewOSRunner().Run(context.Background(), "sh", "-c", "printf hi; printf err >&2")
	require.NoError(t, err)
	assert.Equal(t, "hierr", string(out))
}

func TestOSRunnerRunInDir(t *testing.T) {
	if _, err := LookPath("pwd"); err != nil {
		t.Skip("pwd not available")
	}
	dir := t.TempDir()
	out, err := NewOSRunner().RunInDir(context.Background(), dir, "pwd")
	require.NoError(t, err)
	assert.Contains(t, string(out), dir[len(dir)-8:])
}

func TestOSRunnerEnv(t *testing.T) {
	if _, err := LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &OSRunner{Env: []string{"TORCH_PROBE=42"}}
	out, err := r.Run(context.Background(), "sh", "-c", "printf $TORCH_PROBE")
	require.NoError(t, err)
	assert.Equal(t, "42", string(out))
}

func TestMockRunner(t *testing.T) {
	m := NewMockRunner()
	m.AddResponse("git clone", MockResponse{Err: errors.New("offline")})
	m.AddResponse("git", MockResponse{Stdout: []byte("git version 2")})

	_, err := m.Run(context.Background(), "git", "clone", "url", "dst")
	assert.EqualError(t, err, "offline")

	out, err := m.RunInDir(context.Background(), "/tmp", "git", "--version")
	require.NoError(t, err)
	assert.Equal(t, "git version 2", string(out))

	require.Equal(t, 2, m.CallCount())
	assert.Equal(t, "git clone url dst", m.Calls[0].String())
	assert.Equal(t, "/tmp", m.Calls[1].Dir)

	out, err = m.Run(context.Background(), "unknown")
	assert.NoError(t, err)
	assert.Empty(t, out)
}
