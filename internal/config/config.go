package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Market struct {
		BinanceBaseURL string
		FetchTimeout   time.Duration
	}
	Monitor struct {
		MaxConsecutiveFailures int
		FailureBackoff         time.Duration
		NotifyPolicy           string // "every-tick" or "rising-edge"
		ReapInterval           time.Duration
	}
	Enrich struct {
		GeminiAPIKey string
		GeminiModel  string
		Timeout      time.Duration
	}
	Telegram struct {
		BotToken      string
		RatePerSecond int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	Kafka struct {
		Broker     string
		AlertTopic string
	}
	Notification struct {
		SendTimeout time.Duration
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// NotifyEveryTick re-notifies on every poll where the condition holds.
// NotifyRisingEdge notifies once when the condition becomes true and
// re-arms after it clears.
const (
	NotifyEveryTick  = "every-tick"
	NotifyRisingEdge = "rising-edge"
)

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Market data settings
	cfg.Market.BinanceBaseURL = os.Getenv("BINANCE_BASE_URL")
	cfg.Market.FetchTimeout = durationEnv("FETCH_TIMEOUT", 10*time.Second)

	// Monitor settings
	cfg.Monitor.MaxConsecutiveFailures = intEnv("MONITOR_MAX_CONSECUTIVE_FAILURES", 3)
	cfg.Monitor.FailureBackoff = durationEnv("MONITOR_FAILURE_BACKOFF", 10*time.Minute)
	cfg.Monitor.NotifyPolicy = os.Getenv("NOTIFY_POLICY")
	cfg.Monitor.ReapInterval = durationEnv("MONITOR_REAP_INTERVAL", time.Minute)

	// Enrichment settings
	cfg.Enrich.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.Enrich.GeminiModel = os.Getenv("GEMINI_MODEL")
	cfg.Enrich.Timeout = durationEnv("ENRICH_TIMEOUT", 30*time.Second)

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.RatePerSecond = intEnv("TELEGRAM_RATE_LIMIT", 20)

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = intEnv("EMAIL_SMTP_PORT", 0)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.AlertTopic = os.Getenv("KAFKA_ALERT_TOPIC")

	// Notification settings
	cfg.Notification.SendTimeout = durationEnv("SEND_TIMEOUT", 15*time.Second)

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate settings that have no sensible default
	if cfg.Monitor.NotifyPolicy == "" {
		cfg.Monitor.NotifyPolicy = NotifyEveryTick
	}
	if cfg.Monitor.NotifyPolicy != NotifyEveryTick && cfg.Monitor.NotifyPolicy != NotifyRisingEdge {
		return Config{}, fmt.Errorf("invalid NOTIFY_POLICY %q: must be %q or %q",
			cfg.Monitor.NotifyPolicy, NotifyEveryTick, NotifyRisingEdge)
	}
	if cfg.Monitor.MaxConsecutiveFailures < 1 {
		return Config{}, fmt.Errorf("MONITOR_MAX_CONSECUTIVE_FAILURES must be >= 1")
	}

	// Apply defaults
	if cfg.Market.BinanceBaseURL == "" {
		cfg.Market.BinanceBaseURL = "https://api.binance.com"
	}
	if cfg.Enrich.GeminiModel == "" {
		cfg.Enrich.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.Kafka.AlertTopic == "" {
		cfg.Kafka.AlertTopic = "market_alerts"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}

	return cfg, nil
}

func intEnv(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}
