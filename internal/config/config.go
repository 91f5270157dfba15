package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	ConfigPath string `envconfig:"CONFIG_PATH" default:"config.yaml"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	DBPath            string `envconfig:"DB_PATH"`
	MaxParallel       int    `envconfig:"MAX_PARALLEL" default:"100"`

	// StaleTempAge is how old a leftover temp file in the images directory
	// must be before it is removed at startup.
	StaleTempAge time.Duration `envconfig:"STALE_TEMP_AGE" default:"1h"`

	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBackoff     time.Duration `envconfig:"RETRY_BACKOFF" default:"500ms"`
	RetryMaxBackoff  time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"10s"`
	RetryStatusCodes []int         `envconfig:"RETRY_STATUS_CODES" default:"429,502,503,504"`

	IDColumn     string `envconfig:"ID_COLUMN" default:"malID"`
	URLColumn    string `envconfig:"URL_COLUMN" default:"poster_url"`
	GenresColumn string `envconfig:"GENRES_COLUMN" default:"genres"`
	LabelColumn  string `envconfig:"LABEL_COLUMN" default:"comedy"`

	Telemetry struct {
		Enabled      bool   `split_words:"true"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		// An empty BindAddress disables the status server.
		BindAddress     string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.MaxParallel <= 0 {
		return nil, fmt.Errorf("MAX_PARALLEL must be positive, got %d", cfg.MaxParallel)
	}

	if cfg.RetryMaxAttempts <= 0 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", cfg.RetryMaxAttempts)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
