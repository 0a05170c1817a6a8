// Package shell runs the user's interactive shell on a pseudo-terminal and
// multiplexes bytes between it, the real terminal and the capture pipeline.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/joss/torch/internal/capture"
	"github.com/joss/torch/internal/logging"
	"github.com/joss/torch/internal/terminal"
)

var log = logging.New("shell")

// ErrNotRunning is returned by WriteLeader outside the Running state.
var ErrNotRunning = errors.New("shell session is not running")

// State is the session lifecycle state.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// KeyHandler receives every chunk read from the user's input.
type KeyHandler interface {
	HandleKey(ctx context.Context, key []byte) error
}

// Feeder consumes shell output after it has been shown to the user.
type Feeder interface {
	Feed(chunk []byte) (capture.Class, error)
}

// Options configures a Session.
type Options struct {
	// Shell is the program to run, Args its arguments
	Shell string
	Args  []string

	// Dir is the child's working directory, Env its environment
	Dir string
	Env []string

	// Input is read for keystrokes, Output receives the shell's output
	Input  *os.File
	Output io.Writer

	// Device controls the user's terminal modes
	Device terminal.Device

	// Capture is fed every output chunk (optional)
	Capture Feeder

	PollInterval time.Duration
	BlockSize    int
}

// Session is one shell run on a pseudo-terminal.
type Session struct {
	opts Options
	term *terminal.Controller

	leader   *os.File
	follower *os.File
	cmd      *osexec.Cmd
	exited   chan struct{}

	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	restoreErr error
}

// New prepares a session. Nothing is spawned until Run.
func New(opts Options) (*Session, error) {
	if opts.Shell == "" {
		return nil, errors.New("no shell configured")
	}
	if opts.Input == nil || opts.Output == nil || opts.Device == nil {
		return nil, errors.New("session needs input, output and a terminal device")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 1024
	}
	return &Session{
		opts:   opts,
		term:   terminal.NewController(opts.Device),
		exited: make(chan struct{}),
		state:  StateStarting,
	}, nil
}

// Terminal returns the mode controller shared with the printer.
func (s *Session) Terminal() *terminal.Controller {
	return s.term
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RestoreErr is the error from restoring the terminal during teardown, if any.
func (s *Session) RestoreErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreErr
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// WriteLeader sends bytes to the shell as if typed by the user.
func (s *Session) WriteLeader(p []byte) error {
	if s.State() != StateRunning {
		return ErrNotRunning
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.leader.Write(p); err != nil {
		return fmt.Errorf("write to shell: %w", err)
	}
	return nil
}

// Run spawns the shell and multiplexes until the shell exits, input ends or
// ctx is cancelled. Teardown runs on every path; an error or panic from the
// loop is returned after the terminal has been restored.
func (s *Session) Run(ctx context.Context, keys KeyHandler) error {
	start := time.Now()
	if err := s.start(); err != nil {
		s.teardown()
		return err
	}
	defer s.teardown()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	stopResize := make(chan struct{})
	defer close(stopResize)
	go s.watchResize(winch, stopResize)

	if err := s.term.EnterRaw(); err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	s.setState(StateRunning)
	log.Info("session_started", map[string]interface{}{
		"shell": s.opts.Shell,
		"pid":   s.cmd.Process.Pid,
	})

	err := logging.NewRecoveryHandler("shell").WrapError(func() error {
		return s.loop(ctx, keys)
	})
	log.TimedEvent("session_ended", start, map[string]interface{}{"error": err != nil})
	return err
}

func (s *Session) start() error {
	leader, follower, err := pty.Open()
	if err != nil {
		return fmt.Errorf("open pty: %w", err)
	}
	s.leader, s.follower = leader, follower

	// Not every input is a terminal; a pty without a size still works.
	if size, err := pty.GetsizeFull(s.opts.Input); err == nil {
		_ = pty.Setsize(leader, size)
	}

	cmd := osexec.Command(s.opts.Shell, s.opts.Args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = follower, follower, follower
	cmd.Env = s.opts.Env
	cmd.Dir = s.opts.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.opts.Shell, err)
	}
	s.cmd = cmd

	go func() {
		err := cmd.Wait()
		log.Debug("shell_exited", map[string]interface{}{"error": fmt.Sprint(err)})
		close(s.exited)
	}()
	return nil
}

func (s *Session) watchResize(winch <-chan os.Signal, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-winch:
			if err := pty.InheritSize(s.opts.Input, s.leader); err != nil {
				log.Debug("resize_failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func (s *Session) loop(ctx context.Context, keys KeyHandler) error {
	buf := make([]byte, s.opts.BlockSize)
	fds := []unix.PollFd{
		{Fd: int32(s.leader.Fd()), Events: unix.POLLIN},
		{Fd: int32(s.opts.Input.Fd()), Events: unix.POLLIN},
	}
	timeout := int(s.opts.PollInterval / time.Millisecond)
	if timeout < 1 {
		timeout = 1
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.exited:
			s.drain(buf)
			return nil
		default:
		}

		fds[0].Revents, fds[1].Revents = 0, 0
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		if fds[0].Revents != 0 {
			done, err := s.pump(buf)
			if err != nil || done {
				return err
			}
		}

		if fds[1].Revents != 0 {
			n, err := s.opts.Input.Read(buf)
			if n == 0 || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if err := keys.HandleKey(ctx, buf[:n]); err != nil {
				return err
			}
		}
	}
}

// pump copies one chunk from the shell to the output and the capture. It
// reports done when the shell side is gone.
func (s *Session) pump(buf []byte) (bool, error) {
	n, err := s.leader.Read(buf)
	if n > 0 {
		chunk := buf[:n]
		if _, werr := s.opts.Output.Write(chunk); werr != nil {
			return true, fmt.Errorf("write output: %w", werr)
		}
		if s.opts.Capture != nil {
			if _, cerr := s.opts.Capture.Feed(chunk); cerr != nil {
				log.Warn("capture_failed", nil, cerr)
			}
		}
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) {
			return true, nil
		}
		return true, fmt.Errorf("read shell: %w", err)
	}
	return n == 0, nil
}

// drain forwards whatever the shell wrote before exiting.
func (s *Session) drain(buf []byte) {
	fds := []unix.PollFd{{Fd: int32(s.leader.Fd()), Events: unix.POLLIN}}
	for {
		fds[0].Revents = 0
		n, err := unix.Poll(fds, 0)
		if err != nil && errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n == 0 || fds[0].Revents&unix.POLLIN == 0 {
			return
		}
		if done, _ := s.pump(buf); done {
			return
		}
	}
}

// teardown restores the terminal, closes the pty and signals the child once.
func (s *Session) teardown() {
	s.setState(StateDraining)

	if err := s.term.Close(); err != nil {
		s.mu.Lock()
		s.restoreErr = err
		s.mu.Unlock()
	}

	s.writeMu.Lock()
	if s.leader != nil {
		s.leader.Close()
	}
	if s.follower != nil {
		s.follower.Close()
	}
	s.writeMu.Unlock()

	if s.cmd != nil && s.cmd.Process != nil {
		select {
		case <-s.exited:
		default:
			if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
				log.Warn("terminate_failed", nil, err)
			}
		}
	}

	s.setState(StateClosed)
}
