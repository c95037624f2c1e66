package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken    string
	DatabaseURL      string
	ChatID           string
	ThreadID         string
	HTTPAddr         string
	LogLevel         string
	LogPretty        bool
	DisplayTimezone  *time.Location
	DeliveryTimeout  time.Duration
	NotifyRatePerSec int
}

const (
	defaultDatabaseURL     = "reminders.db"
	defaultHTTPAddr        = ":8080"
	defaultLogLevel        = "info"
	defaultDisplayTimezone = "Europe/Moscow"
	defaultDeliveryTimeout = 10 * time.Second
	defaultNotifyRate      = 20
)

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		TelegramToken:    get("TELEGRAM_TOKEN"),
		DatabaseURL:      get("DATABASE_URL"),
		ChatID:           get("CHAT_ID"),
		ThreadID:         get("THREAD_ID"),
		HTTPAddr:         get("HTTP_ADDR"),
		LogLevel:         strings.ToLower(get("LOG_LEVEL")),
		LogPretty:        parseBool(get("LOG_PRETTY")),
		DeliveryTimeout:  parseDuration(get("DELIVERY_TIMEOUT")),
		NotifyRatePerSec: parsePositiveInt(get("NOTIFY_RATE_PER_SEC")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.HTTPAddr == "" {
		if port := get("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = defaultHTTPAddr
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.DeliveryTimeout == 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.NotifyRatePerSec == 0 {
		cfg.NotifyRatePerSec = defaultNotifyRate
	}

	tzName := get("DISPLAY_TIMEZONE")
	if tzName == "" {
		tzName = defaultDisplayTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return cfg, fmt.Errorf("DISPLAY_TIMEZONE %q: %w", tzName, err)
	}
	cfg.DisplayTimezone = loc

	if cfg.ChatID != "" {
		if _, err := strconv.ParseInt(cfg.ChatID, 10, 64); err != nil {
			return cfg, fmt.Errorf("CHAT_ID must be numeric: %w", err)
		}
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func parseDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

func parsePositiveInt(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
