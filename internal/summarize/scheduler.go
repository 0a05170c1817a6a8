// Package summarize learns a workspace: it walks the directory tree, fans
// out one summarization task per unknown file through a bounded pool, and
// persists the tree listing and the path -> summary map.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/joss/torch/internal/config"
	"github.com/joss/torch/internal/logging"
	"github.com/joss/torch/internal/metrics"
	"github.com/joss/torch/internal/pool"
	"github.com/joss/torch/internal/tokens"
)

var log = logging.New("summarize")

// ErrWorkspaceTooLarge is wrapped by LimitError.
var ErrWorkspaceTooLarge = errors.New("workspace too large")

// ErrNotText marks files whose contents are not valid UTF-8.
var ErrNotText = errors.New("file is not valid UTF-8 text")

// LimitError reports a walk that discovered more files than allowed.
type LimitError struct {
	Count int
	Max   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s (%d/%d files)", ErrWorkspaceTooLarge, e.Count, e.Max)
}

func (e *LimitError) Unwrap() error {
	return ErrWorkspaceTooLarge
}

// Summarizer describes one file in the context of the whole project.
type Summarizer interface {
	SummarizeFile(ctx context.Context, projectDescription, contents string) (string, error)
}

// Options configures a Scheduler.
type Options struct {
	Pool       *pool.Pool
	Escalator  *pool.Escalator
	Summarizer Summarizer
	Settings   config.Settings
	Paths      *config.Paths

	// Description is the project description handed to every summary request
	Description string

	// Metrics receives the run's counts (optional)
	Metrics *metrics.Metrics
}

// Result is the outcome of one scheduling run.
type Result struct {
	Tree      string
	Summaries map[string]string

	// Discovered counts every file in the walk, known or not
	Discovered int
	// Scheduled counts files submitted for summarization
	Scheduled int

	Outcome pool.Outcome
}

// Learned returns the number of files summarized by this run.
func (r *Result) Learned() int {
	return r.Outcome.Completed
}

// Scheduler runs the workspace summarization phase.
type Scheduler struct {
	pool       *pool.Pool
	escalator  *pool.Escalator
	summarizer Summarizer
	settings   config.Settings
	paths      *config.Paths
	desc       string
	metrics    *metrics.Metrics
}

// New creates a Scheduler. A nil Pool or Escalator is built from Settings.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		pool:       opts.Pool,
		escalator:  opts.Escalator,
		summarizer: opts.Summarizer,
		settings:   opts.Settings,
		paths:      opts.Paths,
		desc:       opts.Description,
		metrics:    opts.Metrics,
	}
	if s.pool == nil {
		s.pool = pool.New(s.settings.PoolSize)
	}
	if s.escalator == nil {
		s.escalator = &pool.Escalator{Instant: s.settings.InstantTimeout, Hard: s.settings.HardTimeout}
	}
	return s
}

// Run walks root, descending toward target, and summarizes every file not
// already present in the persisted map. Cancellation of ctx ends the wait
// early; the partial map is still persisted and Result.Outcome.Interrupted
// is set.
func (s *Scheduler) Run(ctx context.Context, root, target string) (*Result, error) {
	start := time.Now()

	rules, err := LoadIgnoreRules(root)
	if err != nil {
		return nil, fmt.Errorf("load ignore rules: %w", err)
	}
	listing, err := Walk(root, target, rules)
	if err != nil {
		return nil, err
	}
	if err := writeFile(s.paths.Tree, []byte(listing.Tree)); err != nil {
		return nil, fmt.Errorf("write tree listing: %w", err)
	}

	summaries, err := LoadSummaryMap(s.paths.Summaries)
	if err != nil {
		return nil, err
	}

	res := &Result{Tree: listing.Tree, Discovered: len(listing.Files)}
	if s.settings.MaxFiles > 0 && len(listing.Files) > s.settings.MaxFiles {
		log.Warn("workspace_too_large", map[string]interface{}{
			"discovered": len(listing.Files),
			"max":        s.settings.MaxFiles,
		}, nil)
		return nil, &LimitError{Count: len(listing.Files), Max: s.settings.MaxFiles}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var tasks []*pool.Task
	for _, rel := range listing.Files {
		if summaries.Has(rel) {
			continue
		}
		tasks = append(tasks, s.pool.Submit(ctx, rel, s.unit(absRoot, rel, summaries)))
	}
	res.Scheduled = len(tasks)

	res.Outcome = s.escalator.AwaitAll(ctx, tasks)
	res.Summaries = summaries.Snapshot()
	if s.metrics != nil {
		s.metrics.RecordLearn(res.Discovered, res.Outcome.Completed, res.Outcome.Failed, res.Outcome.Cancelled)
	}

	if err := summaries.Save(s.paths.Summaries); err != nil {
		return res, fmt.Errorf("save summaries: %w", err)
	}

	log.TimedEvent("summarize_finished", start, map[string]interface{}{
		"discovered": res.Discovered,
		"scheduled":  res.Scheduled,
		"completed":  res.Outcome.Completed,
	})
	return res, nil
}

// unit returns the work for one file. A summarizer failure is stored as an
// "Error: ..." placeholder; read and decode failures fail the task.
func (s *Scheduler) unit(root, rel string, summaries *SummaryMap) pool.Work {
	return func(ctx context.Context) (string, error) {
		if summaries.Has(rel) {
			return "", nil
		}

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", rel, err)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s: %w", rel, ErrNotText)
		}
		contents := string(data)
		if s.settings.MaxFileTokens > 0 {
			contents = tokens.Truncate(contents, s.settings.MaxFileTokens)
		}

		summary, err := s.summarizer.SummarizeFile(ctx, s.desc, contents)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			summary = "Error: " + err.Error()
		}

		if _, err := summaries.SetIfAbsent(ctx, rel, summary); err != nil {
			return "", err
		}
		return summary, nil
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
