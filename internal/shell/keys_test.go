package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

type recordingLeader struct {
	writes []string
}

func (l *recordingLeader) WriteLeader(p []byte) error {
	l.writes = append(l.writes, string(p))
	return nil
}

type fakeQuerier struct {
	queries []string
	err     error
}

func (q *fakeQuerier) Answer(ctx context.Context, query string) error {
	q.queries = append(q.queries, query)
	return q.err
}

type fakeHistory struct{ lines []string }

func (h *fakeHistory) Append(command string) error {
	h.lines = append(h.lines, command)
	return nil
}

type fakeRecorder struct{ messages []string }

func (r *fakeRecorder) AppendMessage(ctx context.Context, role, name, content string) error {
	r.messages = append(r.messages, role+"/"+name+": "+content)
	return nil
}

type fakePrinter struct{ errors []string }

func (p *fakePrinter) Error(format string, args ...any) error {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
	return nil
}

type handlerFixture struct {
	h        *CommandHandler
	leader   *recordingLeader
	echo     *bytes.Buffer
	querier  *fakeQuerier
	history  *fakeHistory
	recorder *fakeRecorder
	printer  *fakePrinter
}

func newFixture() *handlerFixture {
	f := &handlerFixture{
		leader:   &recordingLeader{},
		echo:     &bytes.Buffer{},
		querier:  &fakeQuerier{},
		history:  &fakeHistory{},
		recorder: &fakeRecorder{},
		printer:  &fakePrinter{},
	}
	f.h = NewCommandHandler(HandlerOptions{
		Leader:   f.leader,
		Echo:     f.echo,
		Printer:  f.printer,
		Querier:  f.querier,
		History:  f.history,
		Recorder: f.recorder,
	})
	return f
}

func (f *handlerFixture) typeKeys(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, f.h.HandleKey(context.Background(), []byte(k)))
	}
}

func TestRegularKeysAreForwarded(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "l", "s", "\r")

	assert.Equal(t, []string{"l", "s", "\r"}, f.leader.writes)
	assert.False(t, f.h.Querying())
	assert.Empty(t, f.echo.String())
	assert.Empty(t, f.querier.queries)
}

func TestFirstKeyRules(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "\x7f", "\t")
	assert.Empty(t, f.leader.writes, "backspace and tab at line start are swallowed")

	f.typeKeys(t, "\r")
	assert.Equal(t, []string{"\r"}, f.leader.writes)
}

func TestUppercaseInsideCommandIsForwarded(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "e", "c", "h", "o", " ", "H", "\r")

	assert.False(t, f.h.Querying())
	assert.Equal(t, []string{"e", "c", "h", "o", " ", "H", "\r"}, f.leader.writes)
}

func TestBackspaceToLineStartReenablesQueries(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "x", "\x7f", "W")

	assert.True(t, f.h.Querying())
	assert.Equal(t, []string{"x", "\x7f"}, f.leader.writes)
}

func TestHistoryRecallIsNotLineStart(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "\x1b[A", "W")

	assert.False(t, f.h.Querying())
	assert.Equal(t, []string{"\x1b[A", "W"}, f.leader.writes)
}

func TestQueryIsEchoedAndAnswered(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "W", "h", "y", "?", "\r")

	assert.Equal(t, []string{"Why?"}, f.querier.queries)
	assert.Equal(t, []string{"Why?"}, f.history.lines)
	assert.Equal(t, []string{"user/human: Why?"}, f.recorder.messages)
	assert.Equal(t, "Why?\r\n", f.echo.String())
	assert.Equal(t, []string{"\r"}, f.leader.writes, "only the prompt redraw reaches the shell")
	assert.False(t, f.h.Querying())
}

func TestQueryEditing(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "H", "l", "o", "\x1b[D", "l", "\x1b[C", "\x7f", "o", "\x1b[A", "\t")

	assert.Equal(t, "Hllo", f.h.Line())
	assert.True(t, f.h.Querying())
	assert.Empty(t, f.leader.writes)
}

func TestQueryBackspaceToEmptyLeavesQueryMode(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "A", "\x7f")

	assert.False(t, f.h.Querying())
	assert.Equal(t, "A\b \b", f.echo.String())

	f.typeKeys(t, "l")
	assert.Equal(t, []string{"l"}, f.leader.writes)
}

func TestQueryInterruptGoesToShell(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "A", "b", "\x03")

	assert.False(t, f.h.Querying())
	assert.Equal(t, []string{"\x03"}, f.leader.writes)
	assert.Empty(t, f.querier.queries)
}

func TestQueryErrorIsPrintedNotReturned(t *testing.T) {
	f := newFixture()
	f.querier.err = errors.New("model unavailable")
	f.typeKeys(t, "Q", "\r")

	assert.Equal(t, []string{"model unavailable"}, f.printer.errors)
	assert.Equal(t, []string{"\r"}, f.leader.writes)
}

func TestPastedQueryTextKeepsPrintableRunes(t *testing.T) {
	f := newFixture()
	f.typeKeys(t, "W", "hat is ünïcode\x01")

	assert.Equal(t, "What is ünïcode", f.h.Line())
}

type cancelOnAnswer struct {
	cancel func()
}

func (q *cancelOnAnswer) Answer(ctx context.Context, query string) error {
	q.cancel()
	<-ctx.Done()
	return fmt.Errorf("query failed: %w", ctx.Err())
}

type fakeScope struct {
	cancel   context.CancelFunc
	released bool
}

func (s *fakeScope) Scope(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx, func() {
		s.released = true
		cancel()
	}
}

func TestInterruptedQueryIsNotAnError(t *testing.T) {
	f := newFixture()
	scope := &fakeScope{}
	f.h.opts.Interrupts = scope
	f.h.opts.Querier = &cancelOnAnswer{cancel: func() { scope.cancel() }}

	f.typeKeys(t, "W", "\r")

	assert.Empty(t, f.printer.errors)
	assert.True(t, scope.released)
	assert.Equal(t, []string{"\r"}, f.leader.writes)
	assert.False(t, f.h.Querying())
}

func TestCancelledSessionQueryIsReported(t *testing.T) {
	f := newFixture()
	f.h.opts.Interrupts = &fakeScope{}
	ctx, cancel := context.WithCancel(context.Background())
	f.h.opts.Querier = &cancelOnAnswer{cancel: cancel}

	require.NoError(t, f.h.HandleKey(ctx, []byte("W")))
	require.NoError(t, f.h.HandleKey(ctx, []byte("\r")))

	assert.Len(t, f.printer.errors, 1)
}
