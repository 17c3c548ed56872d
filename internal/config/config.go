// Package config loads daemon configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level resolvaid configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	AI       AIConfig
	SMTP     SMTPConfig
	Notify   NotifyConfig
	Hub      HubConfig
}

// ServerConfig holds HTTP/websocket listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// AIConfig holds generation engine settings.
type AIConfig struct {
	Provider string // "openai" (default) or "anthropic"
	APIKey   string
	BaseURL  string
	Model    string
}

// SMTPConfig holds outbound mail settings. Empty host disables mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NotifyConfig holds team alerting settings. Empty URL disables alerts.
type NotifyConfig struct {
	SlackWebhookURL string
}

// HubConfig holds chat hub tuning.
type HubConfig struct {
	SweepSchedule string // cron spec for idle worker cleanup
	WorkerIdleTTL time.Duration
}

// Load reads configuration from the environment. If envFile is non-empty
// it is loaded first; variables already set in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	} else {
		// Best effort: a .env in the working directory is optional.
		godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("RESOLVAI_HOST", "0.0.0.0"),
			Port: getEnvInt("RESOLVAI_PORT", 5000),
		},
		Database: DatabaseConfig{
			Path: getEnv("RESOLVAI_DB_PATH", "resolvai.db"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("RESOLVAI_JWT_SECRET"),
			TokenTTL:  getEnvDuration("RESOLVAI_TOKEN_TTL", time.Hour),
		},
		AI: AIConfig{
			Provider: getEnv("RESOLVAI_AI_PROVIDER", "openai"),
			APIKey:   os.Getenv("RESOLVAI_AI_API_KEY"),
			BaseURL:  os.Getenv("RESOLVAI_AI_BASE_URL"),
			Model:    os.Getenv("RESOLVAI_AI_MODEL"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("RESOLVAI_SMTP_HOST"),
			Port:     getEnvInt("RESOLVAI_SMTP_PORT", 587),
			Username: os.Getenv("RESOLVAI_SMTP_USER"),
			Password: os.Getenv("RESOLVAI_SMTP_PASS"),
			From:     getEnv("RESOLVAI_SMTP_FROM", "ResolvAI Support <support@resolvai.com>"),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: os.Getenv("RESOLVAI_SLACK_WEBHOOK_URL"),
		},
		Hub: HubConfig{
			SweepSchedule: getEnv("RESOLVAI_SWEEP_SCHEDULE", "@every 5m"),
			WorkerIdleTTL: getEnvDuration("RESOLVAI_WORKER_IDLE_TTL", 10*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: RESOLVAI_JWT_SECRET is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown AI provider %q", c.AI.Provider)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
