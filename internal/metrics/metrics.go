// Package metrics counts what a torch session did and renders the counters
// in the Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds runtime counters for one process.
type Metrics struct {
	// Workspace learning
	FilesDiscovered  atomic.Int64
	FilesSummarized  atomic.Int64
	SummaryFailures  atomic.Int64
	SummaryCancelled atomic.Int64
	LearnRuns        atomic.Int64

	// Interactive session
	Queries           atomic.Int64
	QueryErrors       atomic.Int64
	CapturedCommands  atomic.Int64
	LastQueryDuration atomic.Int64 // ms

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Global returns the process-wide instance.
func Global() *Metrics {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// New returns zeroed counters.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordLearn records one scheduler run.
func (m *Metrics) RecordLearn(discovered, completed, failed, cancelled int) {
	m.LearnRuns.Add(1)
	m.FilesDiscovered.Store(int64(discovered))
	m.FilesSummarized.Add(int64(completed))
	m.SummaryFailures.Add(int64(failed))
	m.SummaryCancelled.Add(int64(cancelled))
}

// RecordQuery records an answered or failed query.
func (m *Metrics) RecordQuery(success bool, duration time.Duration) {
	m.Queries.Add(1)
	if !success {
		m.QueryErrors.Add(1)
	}
	m.LastQueryDuration.Store(duration.Milliseconds())
}

// RecordCapture records a command paired with its output.
func (m *Metrics) RecordCapture() {
	m.CapturedCommands.Add(1)
}

type sample struct {
	name, help, kind string
	value            string
}

func (m *Metrics) samples() []sample {
	counter := func(name, help string, v *atomic.Int64) sample {
		return sample{name, help, "counter", fmt.Sprint(v.Load())}
	}
	return []sample{
		{"torch_uptime_seconds", "Time since torch started", "gauge", fmt.Sprintf("%.2f", time.Since(m.startTime).Seconds())},
		{"torch_files_discovered", "Files found by the last workspace walk", "gauge", fmt.Sprint(m.FilesDiscovered.Load())},
		counter("torch_files_summarized_total", "Files summarized", &m.FilesSummarized),
		counter("torch_summary_failures_total", "Files that could not be read or decoded", &m.SummaryFailures),
		counter("torch_summary_cancelled_total", "Summaries cancelled by timeout or interrupt", &m.SummaryCancelled),
		counter("torch_learn_runs_total", "Workspace learning runs", &m.LearnRuns),
		counter("torch_queries_total", "Natural-language queries", &m.Queries),
		counter("torch_query_errors_total", "Queries that failed", &m.QueryErrors),
		counter("torch_captured_commands_total", "Shell commands recorded with their output", &m.CapturedCommands),
		{"torch_last_query_duration_ms", "Duration of the last query", "gauge", fmt.Sprint(m.LastQueryDuration.Load())},
	}
}

// WriteTo writes every counter in the Prometheus text format.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, s := range m.samples() {
		sep := "\n"
		if i == 0 {
			sep = ""
		}
		n, err := fmt.Fprintf(w, "%s# HELP %s %s\n# TYPE %s %s\n%s %s\n", sep, s.name, s.help, s.name, s.kind, s.name, s.value)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Save writes a snapshot to path.
func (m *Metrics) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.WriteTo(w)
	}
}

// Server wraps the metrics HTTP server.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server for m on addr.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
