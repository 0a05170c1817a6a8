// Package assistant answers natural-language queries typed into the shell,
// using the workspace listing, file summaries and recent transcript as context.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joss/torch/internal/conversation"
	"github.com/joss/torch/internal/logging"
	"github.com/joss/torch/internal/metrics"
	"github.com/joss/torch/internal/tokens"
	"github.com/joss/torch/pkg/llm"
)

var log = logging.New("assistant")

const systemPrompt = `You are torch, a programming assistant that lives inside the user's unix terminal.
You can see the directory structure of the workspace, short summaries of its files and the
most recent commands the user ran together with their output.
Answer the user's latest question concisely. Prefer concrete shell commands and code over prose.
When you suggest a command, put it in its own code block so the user can copy it.`

// Transcript is the conversation the assistant reads from and appends to.
type Transcript interface {
	Recent(ctx context.Context, limit int) ([]conversation.Message, error)
	AppendMessage(ctx context.Context, role, name, content string) error
}

// Printer shows progress and the answer to the user.
type Printer interface {
	Spin(ctx context.Context, label string, fn func(ctx context.Context) error) error
	Answer(text string) error
}

// Options configures an Assistant.
type Options struct {
	LLM        llm.Completer
	Model      string
	Printer    Printer
	Transcript Transcript

	// Description is the one-paragraph project description
	Description string

	// Tree is the directory listing, Summaries the per-file summaries
	Tree      string
	Summaries map[string]string

	// HistoryLimit caps the transcript messages sent with a query
	HistoryLimit int

	// MaxContextTokens caps the summaries and the transcript separately
	MaxContextTokens int

	// LastPrompt and LastResponse are optional debug dumps
	LastPrompt   string
	LastResponse string

	Metrics *metrics.Metrics
}

// Assistant answers queries. It implements shell.Querier.
type Assistant struct {
	opts Options
}

// New creates an Assistant.
func New(opts Options) *Assistant {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = 4000
	}
	return &Assistant{opts: opts}
}

// Answer sends query with the workspace context to the model, prints the
// reply and records it in the transcript.
func (a *Assistant) Answer(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("empty query")
	}
	start := time.Now()

	req := &llm.Request{
		Model:    a.opts.Model,
		System:   systemPrompt,
		Messages: a.buildMessages(ctx, query),
	}
	a.dump(a.opts.LastPrompt, renderPrompt(req))

	var resp *llm.Response
	err := a.opts.Printer.Spin(ctx, "Thinking...", func(ctx context.Context) error {
		var err error
		resp, err = a.opts.LLM.Complete(ctx, req)
		return err
	})
	if a.opts.Metrics != nil {
		a.opts.Metrics.RecordQuery(err == nil, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	answer := strings.TrimSpace(resp.Content)
	a.dump(a.opts.LastResponse, answer)
	if err := a.opts.Printer.Answer(answer); err != nil {
		return err
	}

	if a.opts.Transcript != nil {
		if err := a.opts.Transcript.AppendMessage(ctx, conversation.RoleAssistant, conversation.NameAssistant, answer); err != nil {
			log.Warn("record_answer_failed", nil, err)
		}
	}

	log.TimedEvent("query_answered", start, map[string]interface{}{
		"model":         resp.Model,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	})
	return nil
}

// buildMessages lays out the context the way it is read: what the project
// is, what it looks like, what its files do, what just happened, and finally
// the question itself.
func (a *Assistant) buildMessages(ctx context.Context, query string) []llm.Message {
	var msgs []llm.Message
	add := func(content string) {
		if content != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: content})
		}
	}

	if a.opts.Description != "" {
		add(fmt.Sprintf("This project is about %s.\n", strings.TrimSuffix(a.opts.Description, ".")))
	}
	if a.opts.Tree != "" {
		add(fmt.Sprintf("Here is the directory structure:\n%s\n", a.opts.Tree))
	}
	if summaries := formatSummaries(a.opts.Summaries); summaries != "" {
		add("Here is what each file does:\n" + tokens.Truncate(summaries, a.opts.MaxContextTokens))
	}
	if conv := a.recent(ctx, query); conv != "" {
		add("Here are the most recent conversations between the human, stdout logs, and assistant:\n" +
			tailTokens(conv, a.opts.MaxContextTokens))
	}

	return append(msgs, llm.Message{Role: llm.RoleUser, Content: query})
}

// recent renders the transcript, leaving out the query itself when it was
// already recorded as the latest message.
func (a *Assistant) recent(ctx context.Context, query string) string {
	if a.opts.Transcript == nil {
		return ""
	}
	messages, err := a.opts.Transcript.Recent(ctx, a.opts.HistoryLimit)
	if err != nil {
		log.Warn("read_transcript_failed", nil, err)
		return ""
	}
	if n := len(messages); n > 0 {
		last := messages[n-1]
		if last.Role == conversation.RoleUser && last.Name == conversation.NameHuman && last.Content == query {
			messages = messages[:n-1]
		}
	}

	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[[%s|%s]]\n%s\n", m.Role, m.Name, m.Content)
	}
	return b.String()
}

func formatSummaries(summaries map[string]string) string {
	if len(summaries) == 0 {
		return ""
	}
	paths := make([]string, 0, len(summaries))
	for p := range summaries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "%s: %s\n", p, summaries[p])
	}
	return b.String()
}

// tailTokens keeps the end of text within maxTokens, cutting at a line.
func tailTokens(text string, maxTokens int) string {
	if tokens.Count(text) <= maxTokens {
		return text
	}
	lines := strings.SplitAfter(text, "\n")
	kept := 0
	total := 0
	for i := len(lines) - 1; i >= 0; i-- {
		n := tokens.Count(lines[i])
		if total+n > maxTokens {
			break
		}
		total += n
		kept++
	}
	return strings.Join(lines[len(lines)-kept:], "")
}

func renderPrompt(req *llm.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[[%s]]\n%s\n", llm.RoleSystem, req.System)
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[[%s]]\n%s\n", m.Role, m.Content)
	}
	return b.String()
}

func (a *Assistant) dump(path, content string) {
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		log.Debug("dump_failed", map[string]interface{}{"path": path, "error": err.Error()})
	}
}
