// Package config loads runtime settings from the environment and holds the
// fixed lifecycle constants of the complaint portal.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	StorageDriver string
	DatabaseDSN   string

	RedisAddr     string
	RedisPassword string

	HTTPAddr    string
	CorsOrigins []string

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	LogLevel  string
	LogFormat string

	SMTP     SMTPConfig
	Telegram TelegramConfig
	Minio    MinioConfig
}

// SMTPConfig enables the email dispatcher when Host is set.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// TelegramConfig enables the ops channel dispatcher when both fields are set.
type TelegramConfig struct {
	BotToken  string
	OpsChatID int64
}

func (c TelegramConfig) Enabled() bool { return c.BotToken != "" && c.OpsChatID != 0 }

// MinioConfig enables image uploads when Endpoint is set.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
	UseSSL    bool
}

func (c MinioConfig) Enabled() bool { return c.Endpoint != "" }

// Load reads the configuration. Callers are expected to have run
// godotenv.Load beforehand when a .env file is in use.
func Load() (Config, error) {
	cfg := Config{
		StorageDriver: envOr("STORAGE_DRIVER", DriverPostgres),
		DatabaseDSN:   envOr("DATABASE_DSN", ""),
		RedisAddr:     envOr("REDIS_ADDR", ""),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		CorsOrigins:   parseCSV(envOr("CORS_ORIGINS", "")),
		JWTSecret:     envOr("JWT_SECRET", ""),
		JWTIssuer:     envOr("JWT_ISSUER", "campusfix"),
		TokenTTL:      time.Duration(envOrInt("TOKEN_TTL_HOURS", 12)) * time.Hour,
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "json"),
		SMTP: SMTPConfig{
			Host: envOr("SMTP_HOST", ""),
			Port: envOrInt("SMTP_PORT", 587),
			User: envOr("SMTP_USER", ""),
			Pass: envOr("SMTP_PASS", ""),
			From: envOr("SMTP_FROM", "noreply@campusfix.local"),
		},
		Telegram: TelegramConfig{
			BotToken:  envOr("TELEGRAM_BOT_TOKEN", ""),
			OpsChatID: int64(envOrInt("TELEGRAM_OPS_CHAT_ID", 0)),
		},
		Minio: MinioConfig{
			Endpoint:  envOr("MINIO_ENDPOINT", ""),
			AccessKey: envOr("MINIO_ACCESS_KEY", ""),
			SecretKey: envOr("MINIO_SECRET_KEY", ""),
			Bucket:    envOr("MINIO_BUCKET", "complaint-images"),
			PublicURL: envOr("MINIO_PUBLIC_URL", ""),
			UseSSL:    envOrBool("MINIO_USE_SSL", false),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing env var: JWT_SECRET")
	}
	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return Config{}, fmt.Errorf("missing env var: DATABASE_DSN")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	return cfg, nil
}

// MustEnv returns the trimmed value of key or panics when it is unset.
func MustEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		panic("missing env var: " + key)
	}
	return value
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
