package terminal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	calls      []string
	restoreErr error
	rawErr     error
}

func (d *fakeDevice) MakeRaw() error {
	d.calls = append(d.calls, "raw")
	return d.rawErr
}

func (d *fakeDevice) Restore() error {
	d.calls = append(d.calls, "restore")
	return d.restoreErr
}

func rawController(t *testing.T) (*Controller, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{}
	c := NewController(dev)
	require.NoError(t, c.EnterRaw())
	dev.calls = nil
	return c, dev
}

func TestWithCookedModeTogglesOnce(t *testing.T) {
	c, dev := rawController(t)

	var seen Mode
	err := c.WithCookedMode(func() error {
		seen = c.Mode()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, ModeCooked, seen)
	assert.Equal(t, ModeRaw, c.Mode())
	assert.Equal(t, []string{"restore", "raw"}, dev.calls)
}

func TestWithCookedModeNested(t *testing.T) {
	for depth := 1; depth <= 5; depth++ {
		c, dev := rawController(t)

		var nest func(n int) error
		nest = func(n int) error {
			return c.WithCookedMode(func() error {
				assert.Equal(t, ModeCooked, c.Mode())
				if n > 1 {
					return nest(n - 1)
				}
				return nil
			})
		}

		require.NoError(t, nest(depth))
		assert.Equal(t, ModeRaw, c.Mode(), "depth %d", depth)
		assert.Equal(t, []string{"restore", "raw"}, dev.calls, "depth %d", depth)
	}
}

func TestWithCookedModeInnerError(t *testing.T) {
	c, dev := rawController(t)
	boom := errors.New("boom")

	err := c.WithCookedMode(func() error {
		inner := c.WithCookedMode(func() error { return boom })
		assert.Equal(t, ModeCooked, c.Mode(), "inner failure must not flip back to raw")
		return inner
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ModeRaw, c.Mode())
	assert.Equal(t, []string{"restore", "raw"}, dev.calls)
}

func TestWithCookedModePanic(t *testing.T) {
	c, dev := rawController(t)

	assert.Panics(t, func() {
		_ = c.WithCookedMode(func() error {
			return c.WithCookedMode(func() error { panic("printer crashed") })
		})
	})

	assert.Equal(t, ModeRaw, c.Mode())
	assert.Equal(t, []string{"restore", "raw"}, dev.calls)

	dev.calls = nil
	require.NoError(t, c.WithCookedMode(func() error { return nil }))
	assert.Equal(t, []string{"restore", "raw"}, dev.calls, "depth counter recovered after panic")
}

func TestWithCookedModeBeforeRaw(t *testing.T) {
	dev := &fakeDevice{}
	c := NewController(dev)

	require.NoError(t, c.WithCookedMode(func() error { return nil }))

	assert.Empty(t, dev.calls, "already cooked: nothing to toggle")
	assert.Equal(t, ModeCooked, c.Mode())
}

func TestWithCookedModeRestoreFailureSwallowed(t *testing.T) {
	c, dev := rawController(t)
	dev.restoreErr = errors.New("terminal detached")

	ran := false
	err := c.WithCookedMode(func() error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, ModeRaw, c.Mode())
}

func TestClose(t *testing.T) {
	c, dev := rawController(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "second close is a no-op")
	assert.Equal(t, []string{"restore"}, dev.calls)
	assert.Equal(t, ModeCooked, c.Mode())

	require.NoError(t, c.WithCookedMode(func() error { return nil }))
	assert.Equal(t, []string{"restore"}, dev.calls, "closed controller never re-enters raw")
}

func TestCloseInsideCookedMode(t *testing.T) {
	c, dev := rawController(t)

	require.NoError(t, c.WithCookedMode(func() error {
		return c.Close()
	}))

	assert.Equal(t, []string{"restore", "restore"}, dev.calls)
	assert.Equal(t, ModeCooked, c.Mode())
}

func TestCloseRestoreFailure(t *testing.T) {
	c, dev := rawController(t)
	dev.restoreErr = errors.New("gone")

	assert.Error(t, c.Close())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "raw", ModeRaw.String())
	assert.Equal(t, "cooked", ModeCooked.String())
}
