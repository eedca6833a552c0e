// Package config loads engine settings from defaults, an optional YAML file,
// and DOSEWATCH_-prefixed environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

type Config struct {
	DBPath string `koanf:"db_path"`

	// Enabled is the master notification switch the UI layer owns.
	Enabled bool `koanf:"enabled"`
	// NotifyBefore is the lead time applied to scheduled reminders.
	NotifyBefore time.Duration `koanf:"notify_before"`
	// LookaheadSlack widens the background due query into the near future.
	LookaheadSlack time.Duration `koanf:"lookahead_slack"`
	// Horizon caps how far ahead foreground timers are armed.
	Horizon time.Duration `koanf:"horizon"`
	// ImmediateRefireCooldown dedupes immediate-if-below deliveries per rule.
	ImmediateRefireCooldown time.Duration `koanf:"immediate_refire_cooldown"`
	// SweepSchedule is the cron expression driving background wakes.
	SweepSchedule string `koanf:"sweep_schedule"`

	// CurvePath points at an exported concentration curve JSON file. Empty
	// means no dose history, so threshold rules never find a crossing.
	CurvePath string `koanf:"curve_path"`

	// Notifier selects the delivery backend: "log", "command" or "none".
	Notifier       string `koanf:"notifier"`
	NotifierBinary string `koanf:"notifier_binary"`

	MetricsAddr string `koanf:"metrics_addr"`

	LogLevel  string `koanf:"log_level"`
	LogPretty bool   `koanf:"log_pretty"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"db_path":                   "~/.dosewatch/dosewatch.db",
		"enabled":                   true,
		"notify_before":             "5m",
		"lookahead_slack":           "1m",
		"horizon":                   "168h",
		"immediate_refire_cooldown": "6h",
		"sweep_schedule":            "*/15 * * * *",
		"curve_path":                "",
		"notifier":                  "log",
		"notifier_binary":           "",
		"metrics_addr":              "",
		"log_level":                 "info",
		"log_pretty":                false,
	}
}

// Load reads the configuration. A missing config file is not an error; the
// defaults describe a working headless setup.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("DOSEWATCH_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "DOSEWATCH_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.CurvePath = expandPath(cfg.CurvePath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: db_path must not be empty")
	}
	if c.NotifyBefore < 0 {
		return errors.New("config: notify_before must be >= 0")
	}
	if c.LookaheadSlack <= 0 {
		return errors.New("config: lookahead_slack must be > 0")
	}
	if c.Horizon <= 0 {
		return errors.New("config: horizon must be > 0")
	}
	if c.ImmediateRefireCooldown < 0 {
		return errors.New("config: immediate_refire_cooldown must be >= 0")
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("config: invalid sweep_schedule: %w", err)
	}
	switch c.Notifier {
	case "log", "command", "none":
	default:
		return fmt.Errorf("config: unknown notifier %q (expected log, command or none)", c.Notifier)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
