package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"KisTrader/internal/model"
)

// DefaultBaseURL is the KIS production endpoint.
const DefaultBaseURL = "https://openapi.koreainvestment.com:9443"

// KST is used when the tz database has no Asia/Seoul entry.
var KST = time.FixedZone("KST", 9*3600)

// Config holds all application configuration.
type Config struct {
	Broker struct {
		BaseURL         string        `yaml:"base_url"`
		AppKey          string        `yaml:"app_key"`
		AppSecret       string        `yaml:"app_secret"`
		AccountNo       string        `yaml:"account_no"`
		Timeout         time.Duration `yaml:"timeout"`
		CallPause       time.Duration `yaml:"call_pause"`
		MaxBalancePages int           `yaml:"max_balance_pages"`
	} `yaml:"broker"`
	Trading struct {
		Symbols            []string `yaml:"symbols"`
		ProfitThresholdPct float64  `yaml:"profit_threshold_pct"`
		WindowOpen         string   `yaml:"window_open"`
		WindowClose        string   `yaml:"window_close"`
		Timezone           string   `yaml:"timezone"`
	} `yaml:"trading"`
	Schedule struct {
		CycleCron string `yaml:"cycle_cron"`
	} `yaml:"schedule"`
	State struct {
		TokenFile    string `yaml:"token_file"`
		CalendarFile string `yaml:"calendar_file"`
	} `yaml:"state"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env only fills variables not already set in the process environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] read .env: %v", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.Broker.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.Broker.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NO"); v != "" {
		cfg.Broker.AccountNo = v
	}
	if v := os.Getenv("KIS_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CYCLE_CRON"); v != "" {
		cfg.Schedule.CycleCron = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("PROFIT_THRESHOLD_PCT"); v != "" {
		var pct float64
		if _, err := fmt.Sscanf(v, "%f", &pct); err == nil {
			cfg.Trading.ProfitThresholdPct = pct
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.BaseURL == "" {
		cfg.Broker.BaseURL = DefaultBaseURL
	}
	if cfg.Broker.Timeout == 0 {
		cfg.Broker.Timeout = 30 * time.Second
	}
	if cfg.Broker.CallPause == 0 {
		cfg.Broker.CallPause = 500 * time.Millisecond
	}
	if cfg.Broker.MaxBalancePages == 0 {
		cfg.Broker.MaxBalancePages = 100
	}
	if cfg.Trading.ProfitThresholdPct == 0 {
		cfg.Trading.ProfitThresholdPct = 5.0
	}
	if cfg.Trading.WindowOpen == "" {
		cfg.Trading.WindowOpen = "09:00"
	}
	if cfg.Trading.WindowClose == "" {
		cfg.Trading.WindowClose = "15:20"
	}
	if cfg.Trading.Timezone == "" {
		cfg.Trading.Timezone = "Asia/Seoul"
	}
	if cfg.Schedule.CycleCron == "" {
		cfg.Schedule.CycleCron = "@every 10m"
	}
	if cfg.State.TokenFile == "" {
		cfg.State.TokenFile = "data/token.json"
	}
	if cfg.State.CalendarFile == "" {
		cfg.State.CalendarFile = "data/businesdate.json"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if _, err := ParseCredentials(c.Broker.AppKey, c.Broker.AppSecret, c.Broker.AccountNo); err != nil {
		return err
	}
	if c.Trading.ProfitThresholdPct <= 0 {
		return fmt.Errorf("trading.profit_threshold_pct must be positive")
	}
	open, err := ParseClock(c.Trading.WindowOpen)
	if err != nil {
		return fmt.Errorf("trading.window_open: %w", err)
	}
	closeAt, err := ParseClock(c.Trading.WindowClose)
	if err != nil {
		return fmt.Errorf("trading.window_close: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("trading.window_close must be after trading.window_open")
	}
	if c.Broker.MaxBalancePages <= 0 {
		return fmt.Errorf("broker.max_balance_pages must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// Credentials returns the validated broker credentials.
func (c *Config) Credentials() (model.Credentials, error) {
	return ParseCredentials(c.Broker.AppKey, c.Broker.AppSecret, c.Broker.AccountNo)
}

// Location returns the broker's time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Trading.Timezone)
	if err != nil {
		log.Printf("[WARN] load timezone %q: %v, using fixed KST", c.Trading.Timezone, err)
		return KST
	}
	return loc
}

// ParseCredentials validates the key pair and splits "12345678-01" into prefix and suffix.
func ParseCredentials(appKey, appSecret, accountNo string) (model.Credentials, error) {
	if strings.TrimSpace(appKey) == "" {
		return model.Credentials{}, fmt.Errorf("broker.app_key is required")
	}
	if strings.TrimSpace(appSecret) == "" {
		return model.Credentials{}, fmt.Errorf("broker.app_secret is required")
	}
	parts := strings.Split(accountNo, "-")
	if len(parts) != 2 {
		return model.Credentials{}, fmt.Errorf("broker.account_no %q is malformed, expected e.g. '12345678-01'", accountNo)
	}
	if len(parts[0]) != 8 || len(parts[1]) != 2 {
		return model.Credentials{}, fmt.Errorf("broker.account_no %q must be 8 digits, '-', 2 digits", accountNo)
	}
	return model.Credentials{
		AppKey:        appKey,
		AppSecret:     appSecret,
		AccountPrefix: parts[0],
		AccountSuffix: parts[1],
	}, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
