package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/joss/torch/internal/conversation"
)

// Keys recognised by the handler.
var (
	KeyEnter     = []byte("\r")
	KeyReturn    = []byte("\n")
	KeyBackspace = []byte("\x7f")
	KeyTab       = []byte("\t")
	KeyInterrupt = []byte("\x03")
	KeyUp        = []byte("\x1b[A")
	KeyDown      = []byte("\x1b[B")
	KeyRight     = []byte("\x1b[C")
	KeyLeft      = []byte("\x1b[D")
)

// Querier answers a natural-language query.
type Querier interface {
	Answer(ctx context.Context, query string) error
}

// LeaderWriter forwards bytes to the shell.
type LeaderWriter interface {
	WriteLeader(p []byte) error
}

// HistoryAppender records queries in the shell history.
type HistoryAppender interface {
	Append(command string) error
}

// Recorder stores transcript messages.
type Recorder interface {
	AppendMessage(ctx context.Context, role, name, content string) error
}

// ErrorPrinter reports query failures to the user.
type ErrorPrinter interface {
	Error(format string, args ...any) error
}

// InterruptScope routes Ctrl-C to a single query while it runs.
type InterruptScope interface {
	Scope(parent context.Context) (context.Context, func())
}

// HandlerOptions wires a CommandHandler.
type HandlerOptions struct {
	Leader     LeaderWriter
	Echo       io.Writer
	Printer    ErrorPrinter
	Querier    Querier
	History    HistoryAppender
	Recorder   Recorder
	Interrupts InterruptScope
}

// CommandHandler forwards regular keystrokes to the shell and intercepts
// lines starting with an uppercase letter as queries. A query is edited
// locally and never reaches the shell.
type CommandHandler struct {
	opts  HandlerOptions
	query bool

	// pos counts keys typed on the current shell line
	pos int

	line   []rune
	cursor int
	style  *color.Color
}

// NewCommandHandler returns a handler at the start of a line.
func NewCommandHandler(opts HandlerOptions) *CommandHandler {
	return &CommandHandler{
		opts:  opts,
		style: color.New(color.FgCyan, color.Bold),
	}
}

// Querying reports whether a query is being typed.
func (h *CommandHandler) Querying() bool {
	return h.query
}

// Line returns the query typed so far.
func (h *CommandHandler) Line() string {
	return string(h.line)
}

// HandleKey processes one input chunk.
func (h *CommandHandler) HandleKey(ctx context.Context, key []byte) error {
	if h.query {
		return h.handleQueryKey(ctx, key)
	}
	if h.pos == 0 {
		return h.handleFirstKey(key)
	}
	return h.handleShellKey(key)
}

func (h *CommandHandler) handleFirstKey(key []byte) error {
	switch {
	case isKey(key, KeyEnter), isKey(key, KeyReturn):
		return h.forward(key)
	case isKey(key, KeyBackspace), isKey(key, KeyTab):
		return nil
	case len(key) == 1 && key[0] >= 'A' && key[0] <= 'Z':
		h.query = true
		h.line = h.line[:0]
		h.cursor = 0
		h.insert([]rune{rune(key[0])})
		return nil
	}
	return h.handleShellKey(key)
}

func (h *CommandHandler) handleShellKey(key []byte) error {
	switch {
	case isKey(key, KeyEnter), isKey(key, KeyReturn), isKey(key, KeyInterrupt):
		h.pos = 0
	case isKey(key, KeyBackspace):
		if h.pos > 0 {
			h.pos--
		}
	case isKey(key, KeyUp), isKey(key, KeyDown):
		// History recall puts text on the line we cannot see.
		h.pos++
	default:
		h.pos += utf8.RuneCount(key)
	}
	return h.forward(key)
}

func (h *CommandHandler) handleQueryKey(ctx context.Context, key []byte) error {
	switch {
	case isKey(key, KeyEnter), isKey(key, KeyReturn):
		return h.submit(ctx)
	case isKey(key, KeyInterrupt):
		h.reset()
		return h.forward(KeyInterrupt)
	case isKey(key, KeyBackspace):
		h.backspace()
	case isKey(key, KeyLeft):
		if h.cursor > 0 {
			h.cursor--
			h.echo(string(KeyLeft))
		}
	case isKey(key, KeyRight):
		if h.cursor < len(h.line) {
			h.cursor++
			h.echo(string(KeyRight))
		}
	case isKey(key, KeyUp), isKey(key, KeyDown), isKey(key, KeyTab):
	default:
		h.insert(printable(key))
	}
	return nil
}

// submit runs the query and asks the shell for a fresh prompt.
func (h *CommandHandler) submit(ctx context.Context) error {
	query := string(h.line)
	h.reset()
	h.echo("\r\n")

	if h.opts.History != nil {
		if err := h.opts.History.Append(query); err != nil {
			log.Warn("history_append_failed", nil, err)
		}
	}
	if h.opts.Recorder != nil {
		if err := h.opts.Recorder.AppendMessage(ctx, conversation.RoleUser, conversation.NameHuman, query); err != nil {
			log.Warn("record_query_failed", nil, err)
		}
	}
	if err := h.answer(ctx, query); err != nil {
		log.Warn("query_failed", map[string]interface{}{"query": query}, err)
		if h.opts.Printer != nil {
			h.opts.Printer.Error("%v", err)
		}
	}
	return h.forward(KeyEnter)
}

// answer runs one query. Ctrl-C abandons the query and leaves the session
// running.
func (h *CommandHandler) answer(ctx context.Context, query string) error {
	qctx := ctx
	if h.opts.Interrupts != nil {
		var release func()
		qctx, release = h.opts.Interrupts.Scope(ctx)
		defer release()
	}
	err := h.opts.Querier.Answer(qctx, query)
	if err != nil && ctx.Err() == nil && qctx.Err() != nil && errors.Is(err, context.Canceled) {
		log.Info("query_interrupted", map[string]interface{}{"query": query})
		return nil
	}
	return err
}

func (h *CommandHandler) insert(runes []rune) {
	if len(runes) == 0 {
		return
	}
	tail := append([]rune(nil), h.line[h.cursor:]...)
	h.line = append(append(h.line[:h.cursor], runes...), tail...)
	h.cursor += len(runes)

	h.echo(h.style.Sprint(string(runes)))
	if len(tail) > 0 {
		h.echo(h.style.Sprint(string(tail)) + fmt.Sprintf("\x1b[%dD", len(tail)))
	}
}

func (h *CommandHandler) backspace() {
	if h.cursor == 0 {
		return
	}
	tail := append([]rune(nil), h.line[h.cursor:]...)
	h.line = append(h.line[:h.cursor-1], tail...)
	h.cursor--

	if len(tail) == 0 {
		h.echo("\b \b")
	} else {
		h.echo("\b" + h.style.Sprint(string(tail)) + " " + fmt.Sprintf("\x1b[%dD", len(tail)+1))
	}
	if len(h.line) == 0 {
		// An emptied query hands the line back to the shell.
		h.reset()
	}
}

func (h *CommandHandler) reset() {
	h.query = false
	h.pos = 0
	h.line = h.line[:0]
	h.cursor = 0
}

func (h *CommandHandler) forward(key []byte) error {
	return h.opts.Leader.WriteLeader(key)
}

func (h *CommandHandler) echo(s string) {
	if h.opts.Echo == nil {
		return
	}
	if _, err := io.WriteString(h.opts.Echo, s); err != nil {
		log.Debug("echo_failed", map[string]interface{}{"error": err.Error()})
	}
}

func isKey(chunk, key []byte) bool {
	return string(chunk) == string(key)
}

// printable keeps the printable runes of a chunk, so pasted text works and
// stray escape sequences do not end up in the query.
func printable(chunk []byte) []rune {
	var out []rune
	for len(chunk) > 0 {
		if chunk[0] == 0x1b {
			return out
		}
		r, size := utf8.DecodeRune(chunk)
		chunk = chunk[size:]
		if r != utf8.RuneError && unicode.IsPrint(r) {
			out = append(out, r)
		}
	}
	return out
}
