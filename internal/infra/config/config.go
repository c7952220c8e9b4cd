package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ChannelLog      = "log"
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelWebhook  = "webhook"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseDriver string
	DatabaseURL    string

	TelegramToken   string // empty disables the bot
	AdminTelegramID int64
	OwnerID         string

	AlertChannel        string
	AlertTelegramChatID int64
	ResendAPIKey        string
	EmailFrom           string
	EmailTo             string
	WebhookURL          string
	WebhookRetryMax     int

	LogLevel    string
	Environment string

	CronSpecAlertCycle  string
	Location            *time.Location
	DispatchTimeout     time.Duration
	DispatchConcurrency int
	DispatchRatePerSec  int
	DefaultLeadTimes    []string

	MetricsAddr string // empty disables the /metrics listener
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseDriver = strings.ToLower(getenv("DATABASE_DRIVER", DriverPostgres))
	if cfg.DatabaseDriver != DriverPostgres && cfg.DatabaseDriver != DriverSQLite {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: want postgres or sqlite", cfg.DatabaseDriver)
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if s := os.Getenv("ADMIN_TELEGRAM_ID"); s != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}
	cfg.OwnerID = getenv("OWNER_ID", "default")

	cfg.AlertChannel = strings.ToLower(getenv("ALERT_CHANNEL", ChannelLog))
	if s := os.Getenv("ALERT_TELEGRAM_CHAT_ID"); s != "" {
		cfg.AlertTelegramChatID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ALERT_TELEGRAM_CHAT_ID: %w", err)
		}
	}
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.EmailFrom = os.Getenv("EMAIL_FROM")
	cfg.EmailTo = os.Getenv("EMAIL_TO")
	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	if cfg.WebhookRetryMax, err = getInt("WEBHOOK_RETRY_MAX", 0); err != nil {
		return nil, err
	}
	if err := cfg.validateChannel(); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT", "development"))

	cfg.CronSpecAlertCycle = getenv("CRON_SPEC_ALERT_CYCLE", "0 9 * * *") // 09:00 daily
	cfg.Location, err = time.LoadLocation(getenv("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.DispatchTimeout, err = time.ParseDuration(getenv("DISPATCH_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_TIMEOUT: %w", err)
	}
	if cfg.DispatchConcurrency, err = getInt("DISPATCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.DispatchRatePerSec, err = getInt("DISPATCH_RATE_PER_SEC", 5); err != nil {
		return nil, err
	}
	cfg.DefaultLeadTimes = splitList(getenv("DEFAULT_LEAD_TIMES", "on-due-date,1-week-before,15-days-before"))

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	return cfg, nil
}

func (c *AppConfig) validateChannel() error {
	switch c.AlertChannel {
	case ChannelLog:
	case ChannelTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("ALERT_CHANNEL=telegram requires TELEGRAM_TOKEN")
		}
		if c.AlertTelegramChatID == 0 && c.AdminTelegramID == 0 {
			return fmt.Errorf("ALERT_CHANNEL=telegram requires ALERT_TELEGRAM_CHAT_ID or ADMIN_TELEGRAM_ID")
		}
	case ChannelEmail:
		if c.ResendAPIKey == "" || c.EmailFrom == "" {
			return fmt.Errorf("ALERT_CHANNEL=email requires RESEND_API_KEY and EMAIL_FROM")
		}
	case ChannelWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("ALERT_CHANNEL=webhook requires WEBHOOK_URL")
		}
	default:
		return fmt.Errorf("invalid ALERT_CHANNEL %q", c.AlertChannel)
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
