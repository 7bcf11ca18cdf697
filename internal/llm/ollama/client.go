// Package ollama talks to a local Ollama server over its HTTP API.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/statements-tracker/internal/llm"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "qwen2.5:7b"
)

// Config for the Ollama client.
type Config struct {
	BaseURL     string  // default http://localhost:11434
	Model       string  // default qwen2.5:7b
	Temperature float32 // 0 keeps extraction deterministic
	TopP        float32
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// NewClient builds a client without an HTTP timeout; callers bound each call
// with a context deadline (see llm.Guard).
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/api/generate")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{}, logger: logger}
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type options struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate calls /api/generate without streaming.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := generateRequest{
		Model:   c.cfg.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: options{Temperature: c.cfg.Temperature, TopP: c.cfg.TopP},
	}
	raw, _, err := llm.SendJSON(ctx, c.http, http.MethodPost, c.cfg.BaseURL+"/api/generate", body, nil, c.logger)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return out.Response, nil
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Ping lists local models and checks the configured one has been pulled.
func (c *Client) Ping(ctx context.Context) error {
	raw, _, err := llm.SendJSON(ctx, c.http, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil, nil, c.logger)
	if err != nil {
		return fmt.Errorf("ollama tags: %w", err)
	}
	var tags tagsResponse
	if err := json.Unmarshal(raw, &tags); err != nil {
		return fmt.Errorf("decode ollama tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == c.cfg.Model || m.Model == c.cfg.Model || strings.TrimSuffix(m.Name, ":latest") == c.cfg.Model {
			return nil
		}
	}
	return fmt.Errorf("model %q not pulled on %s", c.cfg.Model, c.cfg.BaseURL)
}

func (c *Client) ModelName() string { return c.cfg.Model }
