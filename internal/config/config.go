// Package config loads and validates application configuration.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains authentication settings. Tokens are issued by an
// external identity service; this service only verifies them.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains all model-integration settings. Passed explicitly into
// the generator; nothing reads it through a global.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	TextModel         string `mapstructure:"text_model"     validate:"required"`
	VisionModel       string `mapstructure:"vision_model"   validate:"required"`
	AudioModel        string `mapstructure:"audio_model"    validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
}

// StorageConfig points at the blob storage backing directory and the public
// base URL blobs are served from.
type StorageConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

// PipelineConfig tunes the enrichment pipeline and its task runner.
type PipelineConfig struct {
	WorkerCount    int           `mapstructure:"worker_count"`
	QueueSize      int           `mapstructure:"queue_size"`
	FetchUserAgent string        `mapstructure:"fetch_user_agent"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
}

// LimitsConfig configures the admission limiter's token buckets per
// operation kind.
type LimitsConfig struct {
	CardCreatePerMinute float64 `mapstructure:"card_create_per_minute"`
	CardCreateBurst     int     `mapstructure:"card_create_burst"`
	ExternalPerMinute   float64 `mapstructure:"external_per_minute"`
	ExternalBurst       int     `mapstructure:"external_burst"`
}

// RetentionConfig tunes the sweep and backfill jobs.
type RetentionConfig struct {
	SweepAfterDays int           `mapstructure:"sweep_after_days"`
	BackfillBatch  int           `mapstructure:"backfill_batch"`
	BackfillGrace  time.Duration `mapstructure:"backfill_grace"`
}
