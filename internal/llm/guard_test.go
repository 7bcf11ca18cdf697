package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/constants"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	errs    []error // consumed per call; nil entries succeed
	reply   string
	pingErr error
}

func (f *fakeClient) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.reply, nil
}

func (f *fakeClient) Ping(context.Context) error { return f.pingErr }
func (f *fakeClient) ModelName() string { return "fake" }

func fastGuard(next Client, threshold int) *Guard {
	g := NewGuard(next, GuardConfig{
		Timeout:          time.Second,
		BreakerThreshold: threshold,
		BreakerCooldown:  time.Minute,
		MaxAttempts:      2,
	}, nil)
	return g
}

func TestGuard_Generate(t *testing.T) {
	t.Run("passes through", func(t *testing.T) {
		f := &fakeClient{reply: `{"transactions":[]}`}
		out, err := fastGuard(f, 3).Generate(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, `{"transactions":[]}`, out)
		assert.Equal(t, 1, f.calls)
	})

	t.Run("unavailable is not retried", func(t *testing.T) {
		f := &fakeClient{errs: []error{ErrUnavailable, nil}}
		_, err := fastGuard(f, 3).Generate(context.Background(), "p")
		require.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 1, f.calls)
	})

	t.Run("breaker opens after threshold and closes after cooldown", func(t *testing.T) {
		f := &fakeClient{errs: []error{ErrUnavailable, ErrUnavailable}, reply: "ok"}
		g := fastGuard(f, 2)
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		g.breaker.now = func() time.Time { return now }

		for i := 0; i < 2; i++ {
			_, err := g.Generate(context.Background(), "p")
			require.ErrorIs(t, err, ErrUnavailable)
		}
		assert.True(t, g.BreakerOpen())

		_, err := g.Generate(context.Background(), "p")
		require.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 2, f.calls, "open breaker refuses without calling the backend")

		now = now.Add(time.Minute)
		out, err := g.Generate(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.False(t, g.BreakerOpen())
	})

	t.Run("disabled never trips the breaker", func(t *testing.T) {
		g := fastGuard(Disabled{}, 1)
		_, err := g.Generate(context.Background(), "p")
		require.ErrorIs(t, err, ErrDisabled)
		assert.False(t, g.BreakerOpen())
	})

	t.Run("long prompts are cut", func(t *testing.T) {
		f := &fakeClient{reply: "ok"}
		g := NewGuard(f, GuardConfig{MaxPromptChars: 50}, nil)
		_, err := g.Generate(context.Background(), strings.Repeat("x", 500))
		require.NoError(t, err)
		require.Len(t, f.prompts, 1)
		assert.Len(t, f.prompts[0], 50)
		assert.True(t, strings.HasSuffix(f.prompts[0], "[TRUNCATED]"))
	})
}

func TestGuardPrompt(t *testing.T) {
	assert.Equal(t, "short", GuardPrompt("short", 100))
	assert.Equal(t, "short", GuardPrompt("short", 0))

	cut := GuardPrompt(strings.Repeat("é", 40), 30)
	assert.True(t, strings.HasSuffix(cut, truncatedMarker))
	assert.LessOrEqual(t, len(cut), 30)
	assert.NotContains(t, cut, "�")
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want constants.ModelHealth
	}{
		{"ok", nil, constants.ModelHealthOK},
		{"disabled", ErrDisabled, constants.ModelHealthDisabled},
		{"unreachable", ErrUnavailable, constants.ModelHealthUnavailable},
		{"timeout", ErrTimeout, constants.ModelHealthUnavailable},
		{"model missing", errors.New("model not pulled"), constants.ModelHealthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CheckHealth(context.Background(), &fakeClient{pingErr: tt.err}, "ollama", time.Second)
			assert.Equal(t, tt.want, h.Status)
			assert.Equal(t, "fake", h.Model)
		})
	}
}
