package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vdogroup/arbwatch/internal/secrets"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Odds provider
	OddsAPIBaseURL string
	Regions        string
	Bookmakers     []string
	OddsAPIRPS     float64
	OddsAPIBurst   float64
	FetchTimeout   time.Duration

	// Credential pool
	CredentialsFile        string
	CredentialInitialQuota int
	QuotaCooldown          time.Duration
	LowQuotaThreshold      int

	// Scanning
	ScanInterval  time.Duration
	CycleTimeout  time.Duration
	ShutdownGrace time.Duration
	FetchWorkers  int
	SportKeys     []string // empty means scan the full catalog

	// Arbitrage
	BaseStake    float64
	MinProfitPct float64

	// Alerts
	AlertMode         string // log, telegram, discord, multi (comma-separated)
	DedupWindow       time.Duration
	TelegramToken     string
	TelegramChatID    int64
	DiscordWebhookURL string

	// Metrics/Health
	MetricsPort   int
	HealthPort    int
	DashboardPort int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:            getEnv("ENVIRONMENT", "production"),
		DatabaseDSN:            getEnv("DATABASE_DSN", "arbwatch:arbwatch@tcp(mysql:3306)/arbwatch?parseTime=true"),
		DatabaseMaxConns:       getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime:    time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		OddsAPIBaseURL:         getEnv("ODDS_API_BASE_URL", "https://api.the-odds-api.com/v4"),
		Regions:                getEnv("ODDS_API_REGIONS", "eu,fr"),
		OddsAPIRPS:             getEnvFloat("ODDS_API_RPS", 2.0),
		OddsAPIBurst:           getEnvFloat("ODDS_API_BURST", 4.0),
		FetchTimeout:           time.Duration(getEnvInt("FETCH_TIMEOUT_SEC", 15)) * time.Second,
		CredentialsFile:        getEnv("CREDENTIALS_FILE", "api_keys.txt"),
		CredentialInitialQuota: getEnvInt("CREDENTIAL_INITIAL_QUOTA", 500),
		QuotaCooldown:          time.Duration(getEnvInt("QUOTA_COOLDOWN_MINS", 60)) * time.Minute,
		LowQuotaThreshold:      getEnvInt("LOW_QUOTA_THRESHOLD", 50),
		ScanInterval:           time.Duration(getEnvInt("SCAN_INTERVAL_SEC", 10)) * time.Second,
		CycleTimeout:           time.Duration(getEnvInt("CYCLE_TIMEOUT_SEC", 120)) * time.Second,
		ShutdownGrace:          time.Duration(getEnvInt("SHUTDOWN_GRACE_SEC", 30)) * time.Second,
		FetchWorkers:           getEnvInt("FETCH_WORKERS", 5),
		BaseStake:              getEnvFloat("BASE_STAKE", 100.0),
		MinProfitPct:           getEnvFloat("MIN_PROFIT_PCT", 0.0),
		AlertMode:              getEnv("ALERT_MODE", "log"),
		DedupWindow:            time.Duration(getEnvInt("COOLDOWN_MINUTES", 5)) * time.Minute,
		TelegramToken:          secrets.GetOptionalSecret("TELEGRAM_BOT_TOKEN", ""),
		DiscordWebhookURL:      secrets.GetOptionalSecret("DISCORD_WEBHOOK_URL", ""),
		MetricsPort:            getEnvInt("METRICS_PORT", 9090),
		HealthPort:             getEnvInt("HEALTH_PORT", 8080),
		DashboardPort:          getEnvInt("DASHBOARD_PORT", 8081),
	}

	// Parse comma-separated lists
	if bookmakers := getEnv("ODDS_API_BOOKMAKERS", defaultBookmakers); bookmakers != "" {
		cfg.Bookmakers = parseCSV(bookmakers)
	}
	if sportKeys := getEnv("SPORT_KEYS", ""); sportKeys != "" {
		cfg.SportKeys = parseCSV(sportKeys)
	}

	if chatID := getEnv("TELEGRAM_CHAT_ID", ""); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultBookmakers mirrors the books we have accounts at; the provider
// silently ignores unknown keys so the list is safe to over-specify.
const defaultBookmakers = "winamax_fr,unibet_fr,betclic_fr,pmu_fr,parionssport_fr,pinnacle,onexbet,betfair_ex_eu"

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.CredentialsFile == "" {
		return fmt.Errorf("CREDENTIALS_FILE is required")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL_SEC must be positive")
	}
	if c.BaseStake <= 0 {
		return fmt.Errorf("BASE_STAKE must be positive")
	}
	if c.FetchWorkers <= 0 {
		return fmt.Errorf("FETCH_WORKERS must be positive")
	}

	// Validate alert mode (comma-separated list)
	hasTelegram := false
	hasDiscord := false
	for _, mode := range strings.Split(c.AlertMode, ",") {
		switch strings.TrimSpace(mode) {
		case "log":
		case "telegram":
			hasTelegram = true
		case "discord":
			hasDiscord = true
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log, telegram, discord)", mode)
		}
	}

	if hasTelegram && (c.TelegramToken == "" || c.TelegramChatID == 0) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when telegram is in ALERT_MODE")
	}
	if hasDiscord && c.DiscordWebhookURL == "" {
		return fmt.Errorf("DISCORD_WEBHOOK_URL is required when discord is in ALERT_MODE")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
