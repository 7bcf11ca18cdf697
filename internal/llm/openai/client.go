// Package openai implements llm.Client over an OpenAI-compatible chat/completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-tracker/internal/llm"
)

var _ llm.Client = (*Client)(nil)

var errNoChoices = errors.New("no choices in openai response")

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message and returns the first choice.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Debug("llm.generate.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"prompt_len", len(prompt),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": "You read bank statements. Answer with JSON only."},
			{"role": "user", "content": prompt},
		},
	}

	raw, _, err := llm.SendJSON(ctx, c.http, http.MethodPost, c.cfg.BaseURL+"/chat/completions", body, c.headers(), c.logger)
	if err != nil {
		c.logger.Warn("llm.generate.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.generate.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.generate.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", errNoChoices
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Debug("llm.generate.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// Ping lists models; any 2xx means the key and endpoint work.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	if _, _, err := llm.SendJSON(ctx, c.http, http.MethodGet, c.cfg.BaseURL+"/models", nil, c.headers(), c.logger); err != nil {
		return fmt.Errorf("openai models: %w", err)
	}
	return nil
}

func (c *Client) ModelName() string { return c.cfg.Model }
