package llm

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/statements-tracker/constants"
)

// Health is the structured result of a model health check.
type Health struct {
	Status    constants.ModelHealth `json:"status"`
	Message   string                `json:"message,omitempty"`
	Provider  string                `json:"provider"`
	Model     string                `json:"model"`
	CheckedAt time.Time             `json:"checked_at"`
	ElapsedMS int64                 `json:"elapsed_ms"`
}

// CheckHealth pings the backend once within timeout.
func CheckHealth(ctx context.Context, c Client, provider string, timeout time.Duration) Health {
	h := Health{Provider: provider, Model: c.ModelName(), CheckedAt: time.Now().UTC()}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.Ping(ctx)
	h.ElapsedMS = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		h.Status = constants.ModelHealthOK
	case errors.Is(err, ErrDisabled):
		h.Status = constants.ModelHealthDisabled
		h.Message = "model assistance disabled by configuration"
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		h.Status = constants.ModelHealthUnavailable
		h.Message = err.Error()
	default:
		h.Status = constants.ModelHealthError
		h.Message = err.Error()
	}
	return h
}
