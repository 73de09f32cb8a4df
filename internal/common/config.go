package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration. It is built once in main and
// passed explicitly; nothing caches it at package level.
type Config struct {
	LLM   LLMConfig
	Batch BatchConfig
}

// LLMConfig holds recognition-related configuration.
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// BatchConfig holds batch-processing knobs.
type BatchConfig struct {
	InterRequestDelay time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		Batch: BatchConfig{
			InterRequestDelay: getEnvAsDuration("BATCH_REQUEST_DELAY", 300*time.Millisecond),
			MaxAttempts:       getEnvAsInt("BATCH_MAX_ATTEMPTS", 3),
			BackoffBase:       getEnvAsDuration("BATCH_BACKOFF_BASE", time.Second),
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	v := NewValidator().
		Field("OPENAI_API_KEY", c.LLM.APIKey, Required).
		Field("OPENAI_MODEL", c.LLM.Model, Required).
		Field("OPENAI_TIMEOUT", c.LLM.Timeout, Positive).
		Field("BATCH_MAX_ATTEMPTS", c.Batch.MaxAttempts, Positive).
		Field("BATCH_REQUEST_DELAY", c.Batch.InterRequestDelay, NonNegative).
		Field("BATCH_BACKOFF_BASE", c.Batch.BackoffBase, Positive)
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.Error().Error(), ErrInvalidInput)
	}
	return nil
}
