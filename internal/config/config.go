package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"addr"`         // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir      string `yaml:"log_dir"`      // logs directory
	LogLevel    string `yaml:"log_level"`    // debug, info, warn, error
	LogStdout   bool   `yaml:"log_stdout"`   // also write logs to stdout
	DatabaseURL string `yaml:"database_url"` // empty means in-memory store

	PublicAPIKeys  []string `yaml:"public_api_keys"`
	AdminAPIKeys   []string `yaml:"admin_api_keys"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	PublicRPM      int      `yaml:"public_rpm"`
	PublicBurst    int      `yaml:"public_burst"`
	AdminRPM       int      `yaml:"admin_rpm"`
	AdminBurst     int      `yaml:"admin_burst"`

	ReportConcurrency int           `yaml:"report_concurrency"`
	ReportInterval    time.Duration `yaml:"report_interval"` // 0 disables periodic reports
	DefaultTimezone   string        `yaml:"default_timezone"`
	DataDir           string        `yaml:"data_dir"` // ingest paths must live under it when set

	SlackWebhookURL      string        `yaml:"slack_webhook_url"`
	SlackChannel         string        `yaml:"slack_channel"`
	AlertDowntimeMinutes int           `yaml:"alert_downtime_minutes"`
	AlertCooldown        time.Duration `yaml:"alert_cooldown"`
	AlertPollInterval    time.Duration `yaml:"alert_poll_interval"` // 0 disables the alerter
	AlertOnRecovery      bool          `yaml:"alert_on_recovery"`
}

func Defaults() Config {
	return Config{
		Addr:                 "127.0.0.1:8080",
		LogDir:               "logs",
		LogLevel:             "info",
		PublicRPM:            120,
		PublicBurst:          60,
		AdminRPM:             30,
		AdminBurst:           10,
		ReportConcurrency:    8,
		DefaultTimezone:      "America/Chicago",
		AlertDowntimeMinutes: 30,
		AlertCooldown:        30 * time.Minute,
		AlertPollInterval:    time.Minute,
		AlertOnRecovery:      true,
	}
}

// FromEnv returns the defaults overridden by environment variables.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// Load reads the YAML file named by CONFIG_FILE (if any) over the defaults,
// then applies environment variables, which always win.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	// Bind address; API_ADDR kept as an alias.
	setString(&cfg.Addr, "API_ADDR")
	setString(&cfg.Addr, "ADDR")
	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setBool(&cfg.LogStdout, "LOG_STDOUT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")

	setList(&cfg.PublicAPIKeys, "PUBLIC_API_KEYS")
	setList(&cfg.AdminAPIKeys, "ADMIN_API_KEYS")
	setList(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setInt(&cfg.PublicRPM, "PUBLIC_RPM", 0)
	setInt(&cfg.PublicBurst, "PUBLIC_BURST", 1)
	setInt(&cfg.AdminRPM, "ADMIN_RPM", 0)
	setInt(&cfg.AdminBurst, "ADMIN_BURST", 1)

	setInt(&cfg.ReportConcurrency, "REPORT_CONCURRENCY", 1)
	setMillis(&cfg.ReportInterval, "REPORT_INTERVAL_MS")
	setString(&cfg.DefaultTimezone, "DEFAULT_TIMEZONE")
	setString(&cfg.DataDir, "DATA_DIR")

	setString(&cfg.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	setString(&cfg.SlackChannel, "SLACK_CHANNEL")
	setInt(&cfg.AlertDowntimeMinutes, "ALERT_DOWNTIME_MINUTES", 1)
	setMillis(&cfg.AlertCooldown, "ALERT_COOLDOWN_MS")
	setMillis(&cfg.AlertPollInterval, "ALERT_POLL_MS")
	setBool(&cfg.AlertOnRecovery, "ALERT_ON_RECOVERY")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// setInt ignores values that do not parse or fall below floor.
func setInt(dst *int, key string, floor int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= floor {
			*dst = n
		}
	}
}

func setMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms >= 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = SplitList(v)
	}
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
