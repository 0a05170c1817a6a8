package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/torch/internal/assistant"
	"github.com/joss/torch/internal/capture"
	"github.com/joss/torch/internal/config"
	"github.com/joss/torch/internal/conversation"
	"github.com/joss/torch/internal/exec"
	"github.com/joss/torch/internal/history"
	"github.com/joss/torch/internal/logging"
	"github.com/joss/torch/internal/metrics"
	"github.com/joss/torch/internal/pool"
	"github.com/joss/torch/internal/render"
	"github.com/joss/torch/internal/runtime"
	"github.com/joss/torch/internal/shell"
	"github.com/joss/torch/internal/summarize"
	"github.com/joss/torch/internal/terminal"
	"github.com/joss/torch/internal/tokens"
	"github.com/joss/torch/internal/tui"
	"github.com/joss/torch/pkg/llm"
)

var log = logging.New("cli")

const missingKeyMessage = "OpenAI API Key not found. Please run the following command in your shell:\n" +
	"\n  `export OPENAI_API_KEY=sk-xxxx`\n\n" +
	"You can find your OpenAI Api Keys at https://platform.openai.com/api-keys"

func run(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	target := workDir
	if len(args) > 0 {
		target = args[0]
		if !filepath.IsAbs(target) {
			target = filepath.Join(workDir, target)
		}
	}

	env := config.Env()
	paths := config.NewPaths(workDir)
	out := render.Stdout()

	shellEnv, err := shell.PrepareEnv(cmd.Context(), shell.EnvOptions{Paths: paths, Runner: exec.Default})
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(paths.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logging.SetOutput(logFile)
	logging.SetLevel(logging.ParseLevel(env.LogLevel))

	if env.OpenAIKey == "" {
		out.Error("Error: %s", missingKeyMessage)
		return errReported
	}

	settings, err := config.LoadSettings(paths.Settings)
	if err != nil {
		return err
	}

	shellName := env.Shell
	if flag, _ := cmd.Flags().GetString("shell"); flag != "" {
		shellName = flag
	}
	shellPath, err := exec.LookPath(shellName)
	if err != nil {
		return fmt.Errorf("shell %q not found: %w", shellName, err)
	}

	if shellEnv.FirstRun {
		out.Print("%s", render.Welcome())
	}

	meter := tokens.NewMeter(tokens.DefaultPricing)
	client := llm.NewOpenAI(env.OpenAIKey, env.OpenAIBaseURL, meter)

	description, result, err := learn(paths, settings, llm.NewSummarizer(client, env.SummaryModel), workDir, target, out)
	if err != nil {
		var limit *summarize.LimitError
		if errors.As(err, &limit) {
			out.Print("%s", render.TooLarge(limit.Count, limit.Max))
			return errReported
		}
		return err
	}

	sessionErr, restoreErr := session(sessionConfig{
		paths:       paths,
		settings:    settings,
		env:         env,
		shellPath:   shellPath,
		shellEnv:    shellEnv,
		client:      client,
		description: description,
		result:      result,
	})

	if sessionErr != nil {
		out.Error("%v", sessionErr)
	}
	if restoreErr != nil {
		out.Warn("Unable to return the terminal to its old settings: %v\nPlease restart your terminal instance by typing `exit`.", restoreErr)
	}
	out.Println("%s", meter.Summary())
	out.Println("\n👋 Goodbye!")
	return nil
}

// learn describes the workspace and summarizes files not seen before. An
// interrupt ends the wait early; whatever was learned is kept.
func learn(paths *config.Paths, settings config.Settings, summarizer *llm.Summarizer, root, target string, out *render.Printer) (string, *summarize.Result, error) {
	mgr := runtime.NewShutdownManager(runtime.DefaultShutdownTimeout)
	mgr.ListenForSignals()
	defer mgr.Shutdown()
	ctx := mgr.Context()

	description, err := summarize.DescribeWorkspace(ctx, paths, summarizer, settings.MaxFileTokens)
	if err != nil {
		log.Warn("describe_workspace_failed", nil, err)
		description = summarize.NoReadmeDescription
	}

	scheduler := summarize.New(summarize.Options{
		Escalator: &pool.Escalator{
			Instant:  settings.InstantTimeout,
			Hard:     settings.HardTimeout,
			Reporter: tui.NewProgressReporter(os.Stdout, settings.HardTimeout),
		},
		Summarizer:  summarizer,
		Settings:    settings,
		Paths:       paths,
		Description: description,
		Metrics:     metrics.Global(),
	})
	result, err := scheduler.Run(ctx, root, target)
	if err != nil {
		return description, nil, err
	}

	if result.Outcome.Interrupted {
		out.Warn("\nLearning process interrupted. Workspace knowledge may be incomplete.")
	} else if n := result.Learned(); n > 0 {
		out.Success("%s", render.Learned(n))
	}
	return description, result, nil
}

type sessionConfig struct {
	paths       *config.Paths
	settings    config.Settings
	env         *config.TorchEnv
	shellPath   string
	shellEnv    *shell.Environment
	client      llm.Completer
	description string
	result      *summarize.Result
}

// session runs the interactive shell. It returns the session error and the
// terminal restore error separately so both can be reported after teardown.
func session(cfg sessionConfig) (error, error) {
	dev, err := terminal.OpenDevice(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("torch needs an interactive terminal: %w", err), nil
	}

	app := runtime.NewShutdownManager(runtime.DefaultShutdownTimeout)
	app.ListenForSignals()
	defer func() {
		if err := app.Shutdown(); err != nil {
			log.Warn("shutdown_failed", nil, err)
		}
	}()
	ctx := app.Context()

	store, err := conversation.Open(ctx, cfg.paths.Conversation, logging.SessionID(), cfg.paths.Workspace)
	if err != nil {
		return err, nil
	}
	app.RegisterSimple("conversation", func() { store.Close() })
	app.RegisterSimple("metrics", func() {
		if err := metrics.Global().Save(cfg.paths.Metrics); err != nil {
			log.Warn("metrics_save_failed", nil, err)
		}
	})
	if cfg.env.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.env.MetricsAddr, metrics.Global())
		srv.Start()
		app.Register("metrics_server", srv.Stop)
	}

	hist := history.New(cfg.paths.History)
	sess, err := shell.New(shell.Options{
		Shell:        cfg.shellPath,
		Dir:          cfg.paths.Workspace,
		Env:          cfg.shellEnv.Vars,
		Input:        os.Stdin,
		Output:       os.Stdout,
		Device:       dev,
		Capture:      capture.New(capture.NewDetector(cfg.settings.NoiseSequences), hist, countingSink{store}, cfg.settings.ExitCommands),
		PollInterval: cfg.settings.PollInterval,
		BlockSize:    cfg.settings.BlockSize,
	})
	if err != nil {
		return err, nil
	}

	printer := render.NewPrinter(os.Stdout, sess.Terminal())
	helper := assistant.New(assistant.Options{
		LLM:              cfg.client,
		Model:            cfg.env.Model,
		Printer:          printer,
		Transcript:       store,
		Description:      cfg.description,
		Tree:             cfg.result.Tree,
		Summaries:        cfg.result.Summaries,
		MaxContextTokens: cfg.settings.MaxFileTokens,
		LastPrompt:       cfg.paths.LastPrompt,
		LastResponse:     cfg.paths.LastResponse,
		Metrics:          metrics.Global(),
	})
	keys := shell.NewCommandHandler(shell.HandlerOptions{
		Leader:     sess,
		Echo:       os.Stdout,
		Printer:    printer,
		Querier:    helper,
		History:    hist,
		Recorder:   store,
		Interrupts: app,
	})

	start := time.Now()
	runErr := sess.Run(ctx, keys)
	log.TimedEvent("session", start, map[string]interface{}{"interrupted": app.Interrupted()})
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return runErr, sess.RestoreErr()
}

// countingSink counts captured commands on their way to the transcript.
type countingSink struct {
	sink capture.Sink
}

func (c countingSink) Append(command, output string) error {
	if err := c.sink.Append(command, output); err != nil {
		return err
	}
	metrics.Global().RecordCapture()
	return nil
}
