package shell

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joss/torch/internal/config"
	"github.com/joss/torch/internal/exec"
	"github.com/joss/torch/internal/summarize"
)

//go:embed zshrc
var zshrc string

// Plugin is a zsh plugin cloned into ZDOTDIR.
type Plugin struct {
	Name string
	URL  string
}

// DefaultPlugins are installed on first run.
var DefaultPlugins = []Plugin{
	{Name: "zsh-autosuggestions", URL: "https://github.com/zsh-users/zsh-autosuggestions.git"},
	{Name: "zsh-syntax-highlighting", URL: "https://github.com/zsh-users/zsh-syntax-highlighting.git"},
}

// EnvOptions configures PrepareEnv.
type EnvOptions struct {
	Paths   *config.Paths
	Runner  exec.Runner
	Plugins []Plugin

	// Environ is the parent environment (nil = os.Environ())
	Environ []string
}

// Environment is what the child shell is started with.
type Environment struct {
	// Vars is the child's environment with ZDOTDIR pointing at the torch config
	Vars []string

	// FirstRun is set when the private directory did not exist before
	FirstRun bool
}

// PrepareEnv creates the config tree, installs the shell config, the default
// ignore list and the plugins, and returns the child environment. A plugin
// that cannot be cloned is logged and skipped.
func PrepareEnv(ctx context.Context, opts EnvOptions) (*Environment, error) {
	paths := opts.Paths
	firstRun, err := paths.Ensure()
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", paths.Home, err)
	}

	if err := writeIfAbsent(paths.ZshRC, zshrc); err != nil {
		return nil, err
	}
	if err := writeIfAbsent(paths.Gitignore, summarize.DefaultIgnore()); err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = exec.Default
	}
	plugins := opts.Plugins
	if plugins == nil {
		plugins = DefaultPlugins
	}
	for _, p := range plugins {
		installPlugin(ctx, runner, paths.Zsh, p)
	}

	if err := writeIfAbsent(paths.History, ""); err != nil {
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	return &Environment{
		Vars:     withVar(environ, "ZDOTDIR", paths.Zsh),
		FirstRun: firstRun,
	}, nil
}

func installPlugin(ctx context.Context, runner exec.Runner, dir string, p Plugin) {
	dest := filepath.Join(dir, p.Name)
	if _, err := os.Stat(dest); err == nil {
		return
	}
	out, err := runner.Run(ctx, "git", "clone", "--depth", "1", p.URL, dest)
	if err != nil {
		log.Warn("plugin_install_failed", map[string]interface{}{
			"plugin": p.Name,
			"output": strings.TrimSpace(string(out)),
		}, err)
		return
	}
	log.Info("plugin_installed", map[string]interface{}{"plugin": p.Name})
}

func writeIfAbsent(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// withVar returns environ with key set to value, replacing any existing entry.
func withVar(environ []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
