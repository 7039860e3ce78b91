package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"virtual-fitting-room/internal/gemini"
)

type Config struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Debug    bool   `env:"DEBUG" envDefault:"false"`

	PreferIPv4 bool `env:"PREFER_IPV4" envDefault:"true"`

	GeminiBaseURL    string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiAPIVersion string `env:"GEMINI_API_VERSION" envDefault:"v1beta"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiBackend    string `env:"GEMINI_BACKEND" envDefault:"rest"`

	WebAddr     string `env:"WEB_ADDR" envDefault:":8080"`
	CatalogPath string `env:"CATALOG_PATH"`

	MaxUploadBytes  int64 `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	ResizeMaxWidth  int   `env:"RESIZE_MAX_WIDTH" envDefault:"800"`
	ResizeMaxHeight int   `env:"RESIZE_MAX_HEIGHT" envDefault:"800"`
	JPEGQuality     int   `env:"JPEG_QUALITY" envDefault:"85"`

	MaxConcurrent int `env:"MAX_CONCURRENT" envDefault:"4"`

	HTTPTimeoutSeconds       int `env:"HTTP_TIMEOUT_SECONDS" envDefault:"180"`
	GenerationTimeoutSeconds int `env:"GENERATION_TIMEOUT_SECONDS" envDefault:"240"`
	SessionIdleTTLMinutes    int `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`
	MediaGroupDebounceMS     int `env:"MEDIA_GROUP_DEBOUNCE_MS" envDefault:"1200"`

	HTTPTimeout        time.Duration
	GenerationTimeout  time.Duration
	SessionIdleTTL     time.Duration
	MediaGroupDebounce time.Duration
}

// Load reads the environment. Only GEMINI_API_KEY is required here; front
// ends check their own requirements with RequireTelegram.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.GeminiBaseURL = strings.TrimSpace(cfg.GeminiBaseURL)
	cfg.GeminiAPIVersion = strings.TrimSpace(cfg.GeminiAPIVersion)
	cfg.GeminiModel = strings.TrimSpace(cfg.GeminiModel)
	cfg.GeminiBackend = strings.ToLower(strings.TrimSpace(cfg.GeminiBackend))
	cfg.CatalogPath = strings.TrimSpace(cfg.CatalogPath)

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}
	switch cfg.GeminiBackend {
	case gemini.BackendREST, gemini.BackendSDK:
	default:
		return Config{}, fmt.Errorf("GEMINI_BACKEND must be %q or %q, got %q", gemini.BackendREST, gemini.BackendSDK, cfg.GeminiBackend)
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.ResizeMaxWidth <= 0 {
		cfg.ResizeMaxWidth = 800
	}
	if cfg.ResizeMaxHeight <= 0 {
		cfg.ResizeMaxHeight = 800
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		cfg.HTTPTimeoutSeconds = 180
	}
	if cfg.GenerationTimeoutSeconds < 0 {
		cfg.GenerationTimeoutSeconds = 0
	}
	if cfg.SessionIdleTTLMinutes < 0 {
		cfg.SessionIdleTTLMinutes = 0
	}
	if cfg.MediaGroupDebounceMS <= 0 {
		cfg.MediaGroupDebounceMS = 1200
	}

	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	cfg.GenerationTimeout = time.Duration(cfg.GenerationTimeoutSeconds) * time.Second
	cfg.SessionIdleTTL = time.Duration(cfg.SessionIdleTTLMinutes) * time.Minute
	cfg.MediaGroupDebounce = time.Duration(cfg.MediaGroupDebounceMS) * time.Millisecond

	return cfg, nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}
