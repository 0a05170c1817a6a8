package assistant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/torch/internal/conversation"
	"github.com/joss/torch/internal/metrics"
	"github.com/joss/torch/pkg/llm"
)

type fakeCompleter struct {
	reqs []*llm.Request
	resp *llm.Response
	err  error
}

func (f *fakeCompleter) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

type fakePrinter struct {
	labels  []string
	answers []string
}

func (p *fakePrinter) Spin(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	p.labels = append(p.labels, label)
	return fn(ctx)
}

func (p *fakePrinter) Answer(text string) error {
	p.answers = append(p.answers, text)
	return nil
}

type fakeTranscript struct {
	messages []conversation.Message
}

func (t *fakeTranscript) Recent(ctx context.Context, limit int) ([]conversation.Message, error) {
	if len(t.messages) > limit {
		return t.messages[len(t.messages)-limit:], nil
	}
	return t.messages, nil
}

func (t *fakeTranscript) AppendMessage(ctx context.Context, role, name, content string) error {
	t.messages = append(t.messages, conversation.Message{Role: role, Name: name, Content: content})
	return nil
}

func TestAnswerBuildsContextAndRecords(t *testing.T) {
	dir := t.TempDir()
	llmc := &fakeCompleter{resp: &llm.Response{Content: "  Run `go test ./...`  ", Model: "m"}}
	printer := &fakePrinter{}
	transcript := &fakeTranscript{messages: []conversation.Message{
		{Role: conversation.RoleUser, Name: conversation.NameHuman, Content: "/w $ go test"},
		{Role: conversation.RoleUser, Name: conversation.NameStdout, Content: "FAIL"},
		{Role: conversation.RoleUser, Name: conversation.NameHuman, Content: "Why did it fail?"},
	}}

	a := New(Options{
		LLM:          llmc,
		Model:        "gpt-4o",
		Printer:      printer,
		Transcript:   transcript,
		Description:  "a shell copilot.",
		Tree:         "└── main.go",
		Summaries:    map[string]string{"b.go": "B", "a.go": "A"},
		LastPrompt:   filepath.Join(dir, "last_prompt.log"),
		LastResponse: filepath.Join(dir, "last_response.log"),
	})

	require.NoError(t, a.Answer(context.Background(), "Why did it fail?"))

	require.Len(t, llmc.reqs, 1)
	req := llmc.reqs[0]
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, systemPrompt, req.System)
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "This project is about a shell copilot.\n", req.Messages[0].Content)
	assert.Contains(t, req.Messages[1].Content, "└── main.go")
	assert.Contains(t, req.Messages[2].Content, "a.go: A\nb.go: B\n")
	assert.Contains(t, req.Messages[3].Content, "[[user|stdout]]\nFAIL\n")
	assert.NotContains(t, req.Messages[3].Content, "Why did it fail?", "the query is sent once")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Why did it fail?"}, req.Messages[4])

	assert.Equal(t, []string{"Thinking..."}, printer.labels)
	assert.Equal(t, []string{"Run `go test ./...`"}, printer.answers)

	last := transcript.messages[len(transcript.messages)-1]
	assert.Equal(t, conversation.RoleAssistant, last.Role)
	assert.Equal(t, "Run `go test ./...`", last.Content)

	prompt, err := os.ReadFile(filepath.Join(dir, "last_prompt.log"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(prompt), "[[system]]\n"))
	response, err := os.ReadFile(filepath.Join(dir, "last_response.log"))
	require.NoError(t, err)
	assert.Equal(t, "Run `go test ./...`", string(response))
}

func TestAnswerWithoutContext(t *testing.T) {
	llmc := &fakeCompleter{resp: &llm.Response{Content: "hi"}}
	a := New(Options{LLM: llmc, Printer: &fakePrinter{}})

	require.NoError(t, a.Answer(context.Background(), "Hello"))
	require.Len(t, llmc.reqs[0].Messages, 1)
}

func TestAnswerErrorIsWrapped(t *testing.T) {
	printer := &fakePrinter{}
	transcript := &fakeTranscript{}
	m := metrics.New()
	a := New(Options{
		LLM:        &fakeCompleter{err: errors.New("rate limited")},
		Printer:    printer,
		Transcript: transcript,
		Metrics:    m,
	})

	err := a.Answer(context.Background(), "Explain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Empty(t, printer.answers)
	assert.Empty(t, transcript.messages)
	assert.EqualValues(t, 1, m.Queries.Load())
	assert.EqualValues(t, 1, m.QueryErrors.Load())
}

func TestAnswerRejectsEmptyQuery(t *testing.T) {
	a := New(Options{LLM: &fakeCompleter{}, Printer: &fakePrinter{}})
	assert.Error(t, a.Answer(context.Background(), "   "))
}

func TestTailTokensKeepsNewestLines(t *testing.T) {
	text := strings.Repeat("old line of text\n", 200) + "newest\n"
	got := tailTokens(text, 20)

	assert.True(t, strings.HasSuffix(got, "newest\n"))
	assert.Less(t, len(got), len(text))
	assert.Equal(t, "short\n", tailTokens("short\n", 20))
}
