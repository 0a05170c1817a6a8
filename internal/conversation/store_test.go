package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, session string) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "logs", "conv.db"), session, "/work")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendCapturedPair(t *testing.T) {
	s := openStore(t, "sess-1")

	require.NoError(t, s.Append("ls -la", "total 0\r\n"))

	msgs, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, NameHuman, msgs[0].Name)
	assert.Equal(t, "/work $ ls -la", msgs[0].Content)

	assert.Equal(t, NameStdout, msgs[1].Name)
	assert.Equal(t, "total 0\r\n", msgs[1].Content)
	assert.NotEmpty(t, msgs[1].ID)
	assert.Equal(t, "sess-1", msgs[1].SessionID)
}

func TestRecentLimitKeepsOrder(t *testing.T) {
	s := openStore(t, "sess-2")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, RoleAssistant, "", fmt.Sprintf("answer %d", i)))
	}

	msgs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "answer 3", msgs[0].Content)
	assert.Equal(t, "answer 4", msgs[1].Content)
}

func TestSessionsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.db")
	ctx := context.Background()

	a, err := Open(ctx, path, "a", "/work")
	require.NoError(t, err)
	require.NoError(t, a.AppendMessage(ctx, RoleUser, NameHuman, "from a"))
	require.NoError(t, a.Close())

	b, err := Open(ctx, path, "b", "/work")
	require.NoError(t, err)
	defer b.Close()

	msgs, err := b.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
