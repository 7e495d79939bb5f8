// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes bot credentials,
// storage, update intake (polling or webhook), outbound rate limits, the
// HTTP server, logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Update intake modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// TelegramConfig defines Bot API access and update intake settings.
type TelegramConfig struct {
	Token        string        // BOT_TOKEN
	ForumGroupID int64         // FORUM_GROUP_ID (staff supergroup with topics enabled)
	APIURL       string        // TELEGRAM_API_URL
	Mode         string        // UPDATE_MODE: polling|webhook
	PollTimeout  time.Duration // POLL_TIMEOUT (long-poll hold time)
	WebhookURL   string        // WEBHOOK_URL (public URL registered with Telegram)
	WebhookSec   string        // WEBHOOK_SECRET (X-Telegram-Bot-Api-Secret-Token)
	RPS          float64       // TELEGRAM_RPS outbound calls per second
	Burst        int           // TELEGRAM_BURST
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "forum-relay-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Telegram TelegramConfig

	// Storage
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Relay
	MaxConcurrency   int           // events handled in parallel
	UpdateReceiptTTL time.Duration // how long a seen update id is remembered

	// Server (health, metrics, webhook)
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	GinMode           string // debug|release|test

	// Webhook intake protection
	RateRPS   float64
	RateBurst int

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Telegram: TelegramConfig{
			Token:        strings.TrimSpace(getenv("BOT_TOKEN", "")),
			ForumGroupID: getint64("FORUM_GROUP_ID", 0),
			APIURL:       strings.TrimRight(getenv("TELEGRAM_API_URL", "https://api.telegram.org"), "/"),
			Mode:         strings.ToLower(getenv("UPDATE_MODE", ModePolling)),
			PollTimeout:  getdur("POLL_TIMEOUT", 30*time.Second),
			WebhookURL:   getenv("WEBHOOK_URL", ""),
			WebhookSec:   getenv("WEBHOOK_SECRET", ""),
			RPS:          getfloat("TELEGRAM_RPS", 25),
			Burst:        getint("TELEGRAM_BURST", 5),
		},

		DBDriver:    strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
		DBPath:      getenv("DB_PATH", "bot.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		MaxConcurrency:   getint("MAX_CONCURRENCY", 32),
		UpdateReceiptTTL: getdur("UPDATE_RECEIPT_TTL", 24*time.Hour),

		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		RateRPS:   getfloat("RATE_RPS", 50),
		RateBurst: getint("RATE_BURST", 100),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "forum-relay-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = DriverPostgres
	}

	// --- validation ---
	if cfg.Telegram.Token == "" {
		return cfg, errors.New("BOT_TOKEN is required")
	}
	if cfg.Telegram.ForumGroupID == 0 {
		return cfg, errors.New("FORUM_GROUP_ID is required")
	}
	switch cfg.Telegram.Mode {
	case ModePolling:
		if cfg.Telegram.PollTimeout < 0 || cfg.Telegram.PollTimeout > 50*time.Second {
			return cfg, errors.New("POLL_TIMEOUT must be between 0s and 50s")
		}
	case ModeWebhook:
		if strings.TrimSpace(cfg.Telegram.WebhookURL) == "" {
			return cfg, errors.New("WEBHOOK_URL is required when UPDATE_MODE=webhook")
		}
		if strings.TrimSpace(cfg.Telegram.WebhookSec) == "" {
			return cfg, errors.New("WEBHOOK_SECRET is required when UPDATE_MODE=webhook")
		}
	default:
		return cfg, errors.New("UPDATE_MODE must be one of: polling, webhook")
	}
	if cfg.Telegram.RPS <= 0 {
		return cfg, errors.New("TELEGRAM_RPS must be > 0")
	}
	if cfg.Telegram.Burst < 1 {
		return cfg, errors.New("TELEGRAM_BURST must be >= 1")
	}
	switch cfg.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.MaxConcurrency < 1 {
		return cfg, errors.New("MAX_CONCURRENCY must be >= 1")
	}
	if cfg.UpdateReceiptTTL <= 0 {
		return cfg, errors.New("UPDATE_RECEIPT_TTL must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
