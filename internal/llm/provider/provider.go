// Package provider builds the configured model client.
package provider

import (
	"log/slog"

	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/llm/ollama"
	"github.com/joseph-ayodele/statements-tracker/internal/llm/openai"
)

// New returns a guarded client for cfg.Provider, or llm.Disabled when model
// assistance is switched off.
func New(cfg common.LLMConfig, logger *slog.Logger) llm.Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		logger.Info("llm.provider.disabled")
		return llm.Disabled{}
	}

	var backend llm.Client
	switch cfg.Provider {
	case "openai":
		backend = openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
	default:
		backend = ollama.NewClient(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
	}

	logger.Info("llm.provider.ready",
		"provider", cfg.Provider,
		"model", backend.ModelName(),
		"timeout_ms", cfg.Timeout.Milliseconds(),
	)
	return llm.NewGuard(backend, llm.GuardConfig{
		Timeout:          cfg.Timeout,
		MaxPromptChars:   cfg.MaxPromptChars,
		RequestsPerSec:   cfg.RequestsPerSec,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		MaxAttempts:      cfg.MaxAttempts,
	}, logger)
}
