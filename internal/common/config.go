package common

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Document DocumentConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Memory   MemoryConfig
	Inbox    InboxConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "sqlite" | "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds daemon listener configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// DocumentConfig holds document decoding configuration
type DocumentConfig struct {
	Pdftotext string
	MaxPages  int
}

// LLMConfig holds model inference configuration
type LLMConfig struct {
	Enabled          bool
	Provider         string // "ollama" | "openai"
	BaseURL          string
	OpenAIBaseURL    string
	Model            string // empty means the provider default
	APIKey           string
	Temperature      float32
	Timeout          time.Duration
	MaxPromptChars   int
	RequestsPerSec   float64
	BreakerThreshold int
	BreakerCooldown  time.Duration
	MaxAttempts      int
}

// PipelineConfig holds the orchestrator thresholds and budgets
type PipelineConfig struct {
	High             float64
	Low              float64
	MinViable        float64
	MaxRetries       int
	LayoutConfidence float64
	DayFirst         bool
	Workers          int
	RunTimeout       time.Duration
}

// MemoryConfig points at the read-only user context snapshots
type MemoryConfig struct {
	Dir string
}

// InboxConfig holds configuration for the daemon's watched directory
type InboxConfig struct {
	Dir      string
	Debounce time.Duration
	UserID   string
	Workers  int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("warning: could not load .env: " + err.Error() + "\n")
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:statements.db?_pragma=foreign_keys(1)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		Document: DocumentConfig{
			Pdftotext: getEnv("PDFTOTEXT", "pdftotext"),
			MaxPages:  getEnvAsInt("MAX_PAGES", 0),
		},
		LLM: LLMConfig{
			Enabled:          getEnvAsBool("LLM_ENABLED", true),
			Provider:         getEnv("LLM_PROVIDER", "ollama"),
			BaseURL:          getEnv("OLLAMA_URL", "http://localhost:11434"),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:            getEnv("LLM_MODEL", ""),
			APIKey:           getEnv("OPENAI_API_KEY", ""),
			Temperature:      getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			MaxPromptChars:   getEnvAsInt("LLM_MAX_PROMPT_CHARS", 12000),
			RequestsPerSec:   getEnvAsFloat64("LLM_RPS", 2),
			BreakerThreshold: getEnvAsInt("LLM_BREAKER_THRESHOLD", 3),
			BreakerCooldown:  getEnvAsDuration("LLM_BREAKER_COOLDOWN", 30*time.Second),
			MaxAttempts:      getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
		},
		Pipeline: PipelineConfig{
			High:             getEnvAsFloat64("PIPELINE_HIGH", 0.90),
			Low:              getEnvAsFloat64("PIPELINE_LOW", 0.60),
			MinViable:        getEnvAsFloat64("PIPELINE_MIN_VIABLE", 0.40),
			MaxRetries:       getEnvAsInt("PIPELINE_MAX_RETRIES", 3),
			LayoutConfidence: getEnvAsFloat64("PIPELINE_LAYOUT_CONFIDENCE", 0.75),
			DayFirst:         getEnvAsBool("PIPELINE_DAY_FIRST", true),
			Workers:          getEnvAsInt("PIPELINE_WORKERS", 4),
			RunTimeout:       getEnvAsDuration("PIPELINE_RUN_TIMEOUT", 3*time.Minute),
		},
		Memory: MemoryConfig{
			Dir: getEnv("MEMORY_DIR", "./memory"),
		},
		Inbox: InboxConfig{
			Dir:      getEnv("INBOX_DIR", "./inbox"),
			Debounce: getEnvAsDuration("INBOX_DEBOUNCE", 750*time.Millisecond),
			UserID:   getEnv("INBOX_USER", "local"),
			Workers:  getEnvAsInt("INBOX_WORKERS", 2),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_DRIVER", c.Database.Driver, OneOf("sqlite", "postgres")).
		Field("DB_URL", c.Database.DSN, Required).
		Field("LLM_PROVIDER", c.LLM.Provider, OneOf("ollama", "openai")).
		Field("PIPELINE_HIGH", c.Pipeline.High, InRange(0, 1)).
		Field("PIPELINE_LOW", c.Pipeline.Low, InRange(0, 1)).
		Field("PIPELINE_MIN_VIABLE", c.Pipeline.MinViable, InRange(0, 1)).
		Field("PIPELINE_LAYOUT_CONFIDENCE", c.Pipeline.LayoutConfidence, InRange(0, 1)).
		Field("PIPELINE_MAX_RETRIES", c.Pipeline.MaxRetries, InRange(0, 10))

	if c.Pipeline.MinViable > c.Pipeline.High {
		v.Add("PIPELINE_MIN_VIABLE", c.Pipeline.MinViable, "must not exceed PIPELINE_HIGH")
	}
	if c.LLM.Enabled && c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		v.Add("OPENAI_API_KEY", "", "is required when LLM_PROVIDER=openai")
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
