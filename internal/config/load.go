package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config
// file. Environment variables with the PINBOX_ prefix take precedence over
// values from config.yaml. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pinbox")

	v.SetEnvPrefix("PINBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; the environment must carry everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("llm.text_model", "gemini-2.0-flash")
	v.SetDefault("llm.vision_model", "gemini-2.0-flash")
	v.SetDefault("llm.audio_model", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("storage.dir", "data/blobs")
	v.SetDefault("storage.base_url", "http://localhost:8080/blobs")

	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.queue_size", 200)
	v.SetDefault("pipeline.fetch_timeout", 15*time.Second)

	v.SetDefault("limits.card_create_per_minute", 30.0)
	v.SetDefault("limits.card_create_burst", 30)
	v.SetDefault("limits.external_per_minute", 60.0)
	v.SetDefault("limits.external_burst", 20)

	v.SetDefault("retention.sweep_after_days", 30)
	v.SetDefault("retention.backfill_batch", 50)
	v.SetDefault("retention.backfill_grace", 5*time.Minute)
}
