package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	GracePeriodSec int `yaml:"grace_period_sec"`
	SessionTTLSec  int `yaml:"session_ttl_sec"`

	BotSearchDepth int `yaml:"bot_search_depth"`
	DefaultBotElo  int `yaml:"default_bot_elo"`
}

// Load builds the configuration from an optional YAML file (CONFIG_FILE)
// overlaid by environment variables. Env always wins.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:     ":8080",
		MetricsAddr:    ":9100",
		GracePeriodSec: 30,
		SessionTTLSec:  86400,
		BotSearchDepth: 3,
		DefaultBotElo:  1200,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.RedisURL = envDefault("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = envDefault("DATABASE_URL", cfg.DatabaseURL)

	if v := strings.TrimSpace(os.Getenv("GRACE_PERIOD_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GracePeriodSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_SEARCH_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 5 {
			cfg.BotSearchDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_BOT_ELO")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultBotElo = n
		}
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("LISTEN_ADDR is required")
	}

	return cfg, nil
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
