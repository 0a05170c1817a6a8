package llm

import (
	"context"
	"fmt"
	"strings"
)

const fileSystemPrompt = `You are an extremely experienced senior engineer and have seen many different codebases.
Given a file in a repository, you can easily summarize the function of the file as part of a larger codebase.
This file can take any text form from code (.go, .py, .ts, ...) to descriptive files (.json, .md, ...).
Given:
  1. A description of what the entire project is about
  2. A single file in the project
You have a single, crucial objective: **Summarize the function/content of the file as part of the larger project in 2-3 sentences.**
Start every file by saying:
  - If it's a README file, say "This folder is about...", describing the general function of the folder.
  - Otherwise, say "This file is about...", describing the specific function of the file.`

// Summarizer describes files and READMEs with a Completer.
type Summarizer struct {
	llm   Completer
	model string
}

// NewSummarizer creates a Summarizer that uses model.
func NewSummarizer(c Completer, model string) *Summarizer {
	return &Summarizer{llm: c, model: model}
}

// SummarizeFile returns a 2-3 sentence summary of contents.
func (s *Summarizer) SummarizeFile(ctx context.Context, projectDescription, contents string) (string, error) {
	var q strings.Builder
	fmt.Fprintf(&q, "This project is about %s.\n", strings.TrimSuffix(projectDescription, "."))
	q.WriteString("This is the file to summarize:")
	fmt.Fprintf(&q, "\n```\n%s\n```\n", contents)
	q.WriteString("Summarize this file as part of the larger project.")

	resp, err := s.llm.Complete(ctx, &Request{
		Model:    s.model,
		System:   fileSystemPrompt,
		Messages: []Message{{Role: RoleUser, Content: q.String()}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// SummarizeReadme describes the project from its README.
func (s *Summarizer) SummarizeReadme(ctx context.Context, readme string) (string, error) {
	var q strings.Builder
	q.WriteString("This is the repository main readme file.\n")
	fmt.Fprintf(&q, "\n```\n%s\n```\n", readme)
	q.WriteString("Read it carefully and summarize what the project is about, and what technology stack is being used.\n")
	q.WriteString(`Start the summary by saying "This project is about..."` + "\n")

	resp, err := s.llm.Complete(ctx, &Request{
		Model:    s.model,
		System:   fileSystemPrompt,
		Messages: []Message{{Role: RoleUser, Content: q.String()}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
