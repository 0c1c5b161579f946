// Package config loads application configuration from the environment.
package config

import (
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// SDKConfig parameterizes Pi SDK initialization.
type SDKConfig struct {
	Version        string        `envconfig:"VERSION" default:"2.0"`
	Sandbox        bool          `envconfig:"SANDBOX" default:"false"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"30s"`
	RetryInterval  time.Duration `envconfig:"RETRY_INTERVAL" default:"1s"`
	InitMaxElapsed time.Duration `envconfig:"INIT_MAX_ELAPSED" default:"5m"` // 0 = retry indefinitely
}

// SessionConfig governs session validity and caching.
type SessionConfig struct {
	TTL      time.Duration `envconfig:"TTL" default:"24h"`
	CacheKey string        `envconfig:"CACHE_KEY" default:"pi_session"`
}

// PaymentConfig governs payment validation and the watchdog.
type PaymentConfig struct {
	MaxAmount float64       `envconfig:"MAX_AMOUNT" default:"10000"`
	MemoLimit int           `envconfig:"MEMO_LIMIT" default:"140"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"5m"`
}

// APIConfig points at the Palace of Quests backend.
type APIConfig struct {
	BaseURL          string        `envconfig:"BASE_URL" default:"http://localhost:5000/api"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	VerifyMaxRetries int           `envconfig:"VERIFY_MAX_RETRIES" default:"0"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	SDK     SDKConfig     `envconfig:"PI_SDK"`
	Session SessionConfig `envconfig:"SESSION"`
	Payment PaymentConfig `envconfig:"PAYMENT"`
	API     APIConfig     `envconfig:"API"`
}

// Load reads configuration from a .env file when present, then from the
// environment.
func Load(logger *slog.Logger) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using system environment variables")
	} else {
		logger.Info("Environment variables loaded from .env file")
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	logger.Info("App config loaded",
		"sandbox", cfg.SDK.Sandbox,
		"session_ttl", cfg.Session.TTL,
		"payment_timeout", cfg.Payment.Timeout,
		"api_base_url", cfg.API.BaseURL)
	return &cfg, nil
}
