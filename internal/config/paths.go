package config

import (
	"os"
	"path/filepath"
)

// DirName is the name of torch's private directory inside a workspace.
const DirName = ".torch"

// Paths holds every file and directory torch keeps inside a workspace.
type Paths struct {
	// Workspace is the directory torch was started in
	Workspace string

	// Home is the private config tree (<workspace>/.torch)
	Home string

	// Logs holds persisted artifacts (<workspace>/.torch/logs)
	Logs string

	// Zsh is the ZDOTDIR handed to the child shell (<workspace>/.torch/zsh)
	Zsh string

	// ZshRC is the shell config installed into Zsh
	ZshRC string

	// History is the shell history file read at prompt boundaries
	History string

	// Gitignore is the bundled default ignore list copied into Home
	Gitignore string

	// Settings is the optional YAML settings file
	Settings string

	// Tree is the persisted directory tree listing
	Tree string

	// Summaries is the persisted path -> summary JSON object
	Summaries string

	// WorkspaceSummary caches the README-derived project description
	WorkspaceSummary string

	// Conversation is the SQLite conversation store
	Conversation string

	// LogFile receives structured log events
	LogFile string

	// LastPrompt and LastResponse keep the latest query exchange for debugging
	LastPrompt   string
	LastResponse string

	// Metrics receives a counter snapshot when the session ends
	Metrics string
}

// NewPaths returns the paths for a workspace rooted at workDir.
func NewPaths(workDir string) *Paths {
	home := filepath.Join(workDir, DirName)
	logs := filepath.Join(home, "logs")
	zsh := filepath.Join(home, "zsh")

	return &Paths{
		Workspace:        workDir,
		Home:             home,
		Logs:             logs,
		Zsh:              zsh,
		ZshRC:            filepath.Join(zsh, ".zshrc"),
		History:          filepath.Join(zsh, ".zsh_history"),
		Gitignore:        filepath.Join(home, ".gitignore"),
		Settings:         filepath.Join(home, "config.yaml"),
		Tree:             filepath.Join(logs, "tree.log"),
		Summaries:        filepath.Join(logs, "dir_dict.json"),
		WorkspaceSummary: filepath.Join(logs, "workspace_summary.log"),
		Conversation:     filepath.Join(logs, "conv.db"),
		LogFile:          filepath.Join(logs, "torch.log"),
		LastPrompt:       filepath.Join(logs, "last_prompt.log"),
		LastResponse:     filepath.Join(logs, "last_response.log"),
		Metrics:          filepath.Join(logs, "metrics.prom"),
	}
}

// Ensure creates the private directory tree. It reports whether Home did not
// exist before the call.
func (p *Paths) Ensure() (created bool, err error) {
	if _, statErr := os.Stat(p.Home); os.IsNotExist(statErr) {
		created = true
	}
	for _, dir := range []string{p.Home, p.Logs, p.Zsh} {
		if err := EnsureDir(dir); err != nil {
			return created, err
		}
	}
	return created, nil
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
