package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 0.90, cfg.Pipeline.High)
	assert.Equal(t, 0.60, cfg.Pipeline.Low)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.True(t, cfg.Pipeline.DayFirst)
	assert.Equal(t, 750*time.Millisecond, cfg.Inbox.Debounce)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_URL", "postgres://u:p@localhost:5432/statements")
	t.Setenv("PIPELINE_HIGH", "0.85")
	t.Setenv("PIPELINE_MAX_RETRIES", "1")
	t.Setenv("PIPELINE_DAY_FIRST", "false")
	t.Setenv("LLM_TIMEOUT", "12s")
	t.Setenv("LLM_ENABLED", "not-a-bool")

	cfg := LoadConfig()
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@localhost:5432/statements", cfg.Database.DSN)
	assert.Equal(t, 0.85, cfg.Pipeline.High)
	assert.Equal(t, 1, cfg.Pipeline.MaxRetries)
	assert.False(t, cfg.Pipeline.DayFirst)
	assert.Equal(t, 12*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.LLM.Enabled, "unparsable values fall back to the default")
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"empty dsn", func(c *Config) { c.Database.DSN = " " }, "DB_URL"},
		{"high out of range", func(c *Config) { c.Pipeline.High = 1.5 }, "PIPELINE_HIGH"},
		{"min viable above high", func(c *Config) { c.Pipeline.MinViable = 0.95 }, "PIPELINE_MIN_VIABLE"},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai"; c.LLM.APIKey = "" }, "OPENAI_API_KEY"},
		{"retries out of range", func(c *Config) { c.Pipeline.MaxRetries = 11 }, "PIPELINE_MAX_RETRIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
