package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/statements-tracker/internal/common"
)

const truncatedMarker = "\n\n[TRUNCATED]"

// GuardConfig bounds every call that reaches the model backend.
type GuardConfig struct {
	Timeout          time.Duration // per attempt; default 30s
	MaxPromptChars   int           // longer prompts are cut; default 12000
	RequestsPerSec   float64       // <= 0 disables the limiter
	BreakerThreshold int           // consecutive failures that open the breaker; default 3
	BreakerCooldown  time.Duration // default 30s
	MaxAttempts      int           // attempts per call, timeouts only; default 2
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = 12000
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	return c
}

// Guard wraps a Client with a prompt size cap, a per-attempt timeout, a rate
// limiter, a circuit breaker and single flight: at most one call is in flight per
// process. Only timeouts are retried.
type Guard struct {
	next    Client
	cfg     GuardConfig
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	breaker *breaker
	logger  *slog.Logger
}

var _ Client = (*Guard)(nil)

func NewGuard(next Client, cfg GuardConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &Guard{
		next:    next,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		sem:     semaphore.NewWeighted(1),
		breaker: &breaker{threshold: cfg.BreakerThreshold, cooldown: cfg.BreakerCooldown, now: time.Now},
		logger:  logger,
	}
}

// Generate runs one guarded model call.
func (g *Guard) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.breaker.allow() {
		g.logger.Warn("llm.guard.breaker_open", "model", g.next.ModelName())
		return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	prompt = GuardPrompt(prompt, g.cfg.MaxPromptChars)

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	var out string
	err := common.WithRetry(ctx, g.logger, func() error {
		actx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		s, err := g.next.Generate(actx, prompt)
		switch {
		case err == nil:
			out = s
			return nil
		case errors.Is(err, ErrTimeout), errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			if !errors.Is(err, ErrTimeout) {
				err = fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			return err
		default:
			return common.Permanent(err)
		}
	}, common.RetryOptions{MaxAttempts: g.cfg.MaxAttempts, InitialDelay: 2 * time.Second})

	switch {
	case err == nil:
		g.breaker.record(true)
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		if g.breaker.record(false) {
			g.logger.Warn("llm.guard.breaker_tripped",
				"model", g.next.ModelName(),
				"cooldown_ms", g.cfg.BreakerCooldown.Milliseconds(),
			)
		}
	}
	g.logger.Debug("llm.guard.call",
		"model", g.next.ModelName(),
		"prompt_chars", len(prompt),
		"ok", err == nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, err
}

// Ping bypasses the breaker so health checks see the backend itself.
func (g *Guard) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.next.Ping(ctx)
}

func (g *Guard) ModelName() string { return g.next.ModelName() }

// BreakerOpen reports whether calls are currently being refused.
func (g *Guard) BreakerOpen() bool { return !g.breaker.allow() }

// GuardPrompt cuts prompt to max characters, marking the cut.
func GuardPrompt(prompt string, max int) string {
	if max <= 0 || len(prompt) <= max {
		return prompt
	}
	cut := max - len(truncatedMarker)
	if cut < 0 {
		cut = 0
	}
	// don't split a multi-byte rune
	for cut > 0 && cut < len(prompt) && !isRuneStart(prompt[cut]) {
		cut--
	}
	return prompt[:cut] + truncatedMarker
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// breaker opens after threshold consecutive failures and lets a trial call
// through once cooldown has passed.
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	now       func() time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	return b.now().Sub(b.openedAt) >= b.cooldown
}

// record returns true when this failure opened the breaker.
func (b *breaker) record(ok bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.failures = 0
		return false
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = b.now()
		return true
	}
	return false
}
