// Package main provides the torch CLI entrypoint.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// errReported ends the process with a failure status after the message has
// already been shown.
var errReported = errors.New("reported")

func main() {
	rootCmd := &cobra.Command{
		Use:   "torch [dir]",
		Short: "A shell copilot that knows your workspace",
		Long: `torch starts your shell inside a pseudo-terminal and learns the workspace.

Usage:
  torch          Learn the current directory and start the shell
  torch <dir>    Learn only <dir> (relative to the current directory)

Inside the shell, start a line with a capital letter to ask a question.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          run,
	}
	rootCmd.Flags().String("shell", "", "Shell to run (default $TORCH_SHELL or zsh)")

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
