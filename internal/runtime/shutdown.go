// Package runtime coordinates interrupts and orderly cleanup for a torch
// process.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joss/torch/internal/logging"
)

var log = logging.New("runtime")

// ShutdownFunc is a cleanup function called during shutdown
type ShutdownFunc func(ctx context.Context) error

// ShutdownManager cancels a shared context on interrupt and runs cleanup
// handlers on an explicit Shutdown.
//
// A signal only cancels Context: work in flight unwinds through its own
// cancellation path, and resources stay open until the caller decides to
// shut down.
type ShutdownManager struct {
	mu          sync.Mutex
	handlers    []namedHandler
	timeout     time.Duration
	shutdownCtx context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	once        sync.Once

	signals     chan os.Signal
	interrupted atomic.Bool

	// scope receives SIGINT instead of the shared context while set
	scope context.CancelFunc
}

type namedHandler struct {
	name string
	fn   ShutdownFunc
}

// DefaultShutdownTimeout is the default timeout for cleanup operations
const DefaultShutdownTimeout = 10 * time.Second

// NewShutdownManager creates a new shutdown manager with specified timeout
func NewShutdownManager(timeout time.Duration) *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		timeout:     timeout,
		shutdownCtx: ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Register adds a cleanup handler to be called during shutdown.
// Handlers run one at a time in reverse order (LIFO).
func (m *ShutdownManager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, namedHandler{name: name, fn: fn})
}

// RegisterSimple adds a simple cleanup function (no error return)
func (m *ShutdownManager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context returns a context that is cancelled on interrupt or shutdown
func (m *ShutdownManager) Context() context.Context {
	return m.shutdownCtx
}

// Done returns a channel that's closed when shutdown is complete
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// Interrupted reports whether a signal cancelled the context.
func (m *ShutdownManager) Interrupted() bool {
	return m.interrupted.Load()
}

// Interrupt cancels the context as a received signal would. While a Scope
// is open, SIGINT cancels only that scope.
func (m *ShutdownManager) Interrupt(sig os.Signal) {
	if sig == syscall.SIGINT {
		m.mu.Lock()
		scope := m.scope
		m.mu.Unlock()
		if scope != nil {
			log.Info("scope_interrupted", map[string]interface{}{"signal": fmt.Sprint(sig)})
			scope()
			return
		}
	}
	m.interrupted.Store(true)
	log.Info("interrupted", map[string]interface{}{"signal": fmt.Sprint(sig)})
	m.cancel()
}

// ListenForSignals cancels Context on SIGINT or SIGTERM.
// This is non-blocking and should be called once at startup
func (m *ShutdownManager) ListenForSignals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signals != nil {
		return
	}
	m.signals = make(chan os.Signal, 1)
	signal.Notify(m.signals, syscall.SIGTERM, syscall.SIGINT)

	go func(ch <-chan os.Signal) {
		for {
			select {
			case sig := <-ch:
				m.Interrupt(sig)
			case <-m.done:
				return
			}
		}
	}(m.signals)
}

// Scope returns a context derived from parent that SIGINT cancels in place
// of the shared context, until release is called. Scopes do not nest; the
// latest one wins.
func (m *ShutdownManager) Scope(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	m.mu.Lock()
	m.scope = cancel
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		m.scope = nil
		m.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Shutdown runs the cleanup handlers once and returns their joined errors.
func (m *ShutdownManager) Shutdown() error {
	var err error
	m.once.Do(func() {
		err = m.performShutdown()
	})
	return err
}

func (m *ShutdownManager) performShutdown() error {
	defer close(m.done)

	m.mu.Lock()
	if m.signals != nil {
		signal.Stop(m.signals)
	}
	handlers := make([]namedHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			log.Warn("shutdown_timeout", map[string]interface{}{"skipped": h.name}, ctx.Err())
			errs = append(errs, fmt.Errorf("%s: %w", h.name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := runHandler(ctx, h); err != nil {
			log.Warn("shutdown_handler_failed", map[string]interface{}{"handler": h.name}, err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		log.TimedEvent("shutdown_handler", start, map[string]interface{}{"handler": h.name})
	}
	return errors.Join(errs...)
}

// runHandler waits for h at most until ctx expires.
func runHandler(ctx context.Context, h namedHandler) error {
	result := make(chan error, 1)
	go func() {
		result <- logging.NewRecoveryHandler("shutdown").WrapError(func() error {
			return h.fn(ctx)
		})
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
