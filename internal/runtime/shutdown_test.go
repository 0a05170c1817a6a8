package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_Register(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var called int32
	m.Register("test-handler", func(ctx context.Context) error {
		atomic.AddInt32(&called, 1)
		return nil
	})

	require.NoError(t, m.Shutdown())
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestShutdownManager_LIFO(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var order []string
	m.RegisterSimple("store", func() { order = append(order, "store") })
	m.RegisterSimple("logs", func() { order = append(order, "logs") })
	m.RegisterSimple("terminal", func() { order = append(order, "terminal") })

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{"terminal", "logs", "store"}, order)
}

func TestShutdownManager_Context(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)
	ctx := m.Context()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled before shutdown")
	default:
	}

	require.NoError(t, m.Shutdown())

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled after shutdown")
	}
}

func TestShutdownManager_InterruptCancelsWithoutCleanup(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var cleaned atomic.Bool
	m.RegisterSimple("store", func() { cleaned.Store(true) })

	m.Interrupt(syscall.SIGINT)

	assert.Error(t, m.Context().Err())
	assert.True(t, m.Interrupted())
	assert.False(t, cleaned.Load(), "handlers wait for an explicit Shutdown")

	select {
	case <-m.Done():
		t.Fatal("done must stay open until Shutdown")
	default:
	}

	require.NoError(t, m.Shutdown())
	assert.True(t, cleaned.Load())
}

func TestShutdownManager_Timeout(t *testing.T) {
	m := NewShutdownManager(100 * time.Millisecond)

	m.Register("slow-handler", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	start := time.Now()
	err := m.Shutdown()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestShutdownManager_ErrorHandling(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	boom := errors.New("test error")
	var after atomic.Bool
	m.RegisterSimple("runs-after", func() { after.Store(true) })
	m.Register("error-handler", func(ctx context.Context) error { return boom })
	m.Register("panic-handler", func(ctx context.Context) error { panic("bad") })

	err := m.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panic-handler")
	assert.True(t, after.Load(), "a failing handler does not stop the rest")
}

func TestShutdownManager_OnlyOnce(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var callCount int32
	m.Register("once-handler", func(ctx context.Context) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	})

	m.Shutdown()
	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, int32(1), atomic.LoadInt32(&callCount))
	<-m.Done()
}

func TestShutdownManager_ListenForSignalsIdempotent(t *testing.T) {
	m := NewShutdownManager(time.Second)
	m.ListenForSignals()
	m.ListenForSignals()
	require.NoError(t, m.Shutdown())
}

func TestShutdownManager_ScopeTakesInterrupt(t *testing.T) {
	m := NewShutdownManager(time.Second)
	defer m.Shutdown()

	ctx, release := m.Scope(m.Context())
	m.Interrupt(syscall.SIGINT)

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NoError(t, m.Context().Err(), "the shared context survives")
	assert.False(t, m.Interrupted())

	release()
	m.Interrupt(syscall.SIGINT)
	assert.Error(t, m.Context().Err())
	assert.True(t, m.Interrupted())
}

func TestShutdownManager_ScopeIgnoresTerminate(t *testing.T) {
	m := NewShutdownManager(time.Second)
	defer m.Shutdown()

	ctx, release := m.Scope(m.Context())
	defer release()
	m.Interrupt(syscall.SIGTERM)

	assert.Error(t, m.Context().Err())
	assert.Error(t, ctx.Err(), "scopes derive from the shared context")
}
