// Package config provides centralized configuration management.
package config

import (
	"os"
	"sync"
)

// TorchEnv holds all environment variables torch reads.
type TorchEnv struct {
	// OpenAIKey is the API key used for summaries and queries (OPENAI_API_KEY)
	OpenAIKey string

	// OpenAIBaseURL overrides the chat completions endpoint (OPENAI_BASE_URL)
	OpenAIBaseURL string

	// Model is the model used to answer queries (TORCH_MODEL)
	Model string

	// SummaryModel is the model used for file summaries (TORCH_SUMMARY_MODEL)
	SummaryModel string

	// Shell is the interactive shell binary (TORCH_SHELL)
	Shell string

	// LogLevel is the minimum log level written to torch.log (TORCH_LOG_LEVEL)
	LogLevel string

	// MetricsAddr serves /metrics while the session runs when set (TORCH_METRICS_ADDR)
	MetricsAddr string
}

var (
	env     *TorchEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *TorchEnv {
	envOnce.Do(func() {
		model := getEnvDefault("TORCH_MODEL", "gpt-3.5-turbo")
		env = &TorchEnv{
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:         model,
			SummaryModel:  getEnvDefault("TORCH_SUMMARY_MODEL", model),
			Shell:         getEnvDefault("TORCH_SHELL", "zsh"),
			LogLevel:      getEnvDefault("TORCH_LOG_LEVEL", "info"),
			MetricsAddr:   os.Getenv("TORCH_METRICS_ADDR"),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
