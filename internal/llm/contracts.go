package llm

import (
	"context"
	"errors"
)

// Generator is a stateless text completion call: one prompt in, raw text out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is a Generator that can also report on its backend.
type Client interface {
	Generator
	Ping(ctx context.Context) error
	ModelName() string
}

var (
	// ErrUnavailable covers connection failures, 5xx responses and an open breaker.
	ErrUnavailable = errors.New("model service unavailable")
	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("model call timed out")
	// ErrDisabled is returned by the Disabled client.
	ErrDisabled = errors.New("model assistance disabled")
)

// Disabled is the Client used when LLM_ENABLED=false.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, error) { return "", ErrDisabled }
func (Disabled) Ping(context.Context) error { return ErrDisabled }
func (Disabled) ModelName() string { return "" }
