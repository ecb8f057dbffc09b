package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
)

// Config holds all application configuration
type Config struct {
	Pipeline  PipelineConfig
	Cache     CacheConfig
	Fallback  FallbackConfig
	Providers ProvidersConfig
	MinIO     MinIOConfig
	Database  DatabaseConfig
	Server    ServerConfig
}

// PipelineConfig holds batch sizing, concurrency and the validation gate.
type PipelineConfig struct {
	MaxBatchSize    int
	Workers         int
	AcceptThreshold float64
	RejectThreshold float64
}

// CacheConfig holds extraction-cache sizing and expiry.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// FallbackConfig holds provider ordering and retry behavior.
type FallbackConfig struct {
	Order       []string
	RetryLimit  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	CallTimeout time.Duration
}

// ProviderConfig holds one LLM backend's credentials and model selection.
type ProviderConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
}

// MinIOConfig holds object storage settings for the invoice bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxBatchSize:    getEnvAsInt("MAX_BATCH_SIZE", 5),
			Workers:         getEnvAsInt("WORKERS", 4),
			AcceptThreshold: getEnvAsFloat("ACCEPT_THRESHOLD", 0.90),
			RejectThreshold: getEnvAsFloat("REJECT_THRESHOLD", 0.50),
		},
		Cache: CacheConfig{
			TTL:        time.Duration(getEnvAsInt("CACHE_TTL_HOURS", 24)) * time.Hour,
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
		},
		Fallback: FallbackConfig{
			Order:       getEnvAsList("PROVIDER_ORDER", []string{constants.ProviderGemini, constants.ProviderOpenAI, constants.ProviderAnthropic}),
			RetryLimit:  getEnvAsInt("RETRY_LIMIT", 2),
			BackoffBase: time.Duration(getEnvAsInt("BACKOFF_BASE_MS", 250)) * time.Millisecond,
			BackoffCap:  time.Duration(getEnvAsInt("BACKOFF_CAP_MS", 5000)) * time.Millisecond,
			CallTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 45*time.Second),
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:      getEnv("OPENAI_API_KEY", ""),
				Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL:     getEnv("OPENAI_BASE_URL", ""),
				Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
				MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1500),
			},
			Anthropic: ProviderConfig{
				APIKey:      getEnv("ANTHROPIC_API_KEY", ""),
				Model:       getEnv("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
				BaseURL:     getEnv("ANTHROPIC_BASE_URL", ""),
				Temperature: getEnvAsFloat32("ANTHROPIC_TEMPERATURE", 0.1),
				MaxTokens:   getEnvAsInt("ANTHROPIC_MAX_TOKENS", 1500),
			},
			Gemini: ProviderConfig{
				APIKey:      getEnv("GEMINI_API_KEY", ""),
				Model:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
				BaseURL:     getEnv("GEMINI_BASE_URL", ""),
				Temperature: getEnvAsFloat32("GEMINI_TEMPERATURE", 0.1),
				MaxTokens:   getEnvAsInt("GEMINI_MAX_TOKENS", 1500),
			},
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "invoices"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Pipeline.MaxBatchSize <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_BATCH_SIZE must be positive", ErrInvalidInput)
	}
	if c.Pipeline.RejectThreshold < 0 || c.Pipeline.AcceptThreshold > 1 ||
		c.Pipeline.RejectThreshold > c.Pipeline.AcceptThreshold {
		return NewAppError("CONFIG_ERROR", "thresholds must satisfy 0 <= reject <= accept <= 1", ErrInvalidInput)
	}
	if len(c.Fallback.Order) == 0 {
		return NewAppError("CONFIG_ERROR", "PROVIDER_ORDER is required", ErrInvalidInput)
	}
	if c.MinIO.Endpoint == "" {
		return NewAppError("CONFIG_ERROR", "MINIO_ENDPOINT is required", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
