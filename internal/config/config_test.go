package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.GracePeriodSec != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionTTLSec != 86400 || cfg.DefaultBotElo != 1200 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("GRACE_PERIOD_SEC", "5")
	t.Setenv("BOT_SEARCH_DEPTH", "9") // above cap, ignored
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" || cfg.GracePeriodSec != 5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.BotSearchDepth != 3 {
		t.Fatalf("depth cap not enforced: %d", cfg.BotSearchDepth)
	}
}

func TestLoadYAMLOverlayThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7000\"\ngrace_period_sec: 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("GRACE_PERIOD_SEC", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("yaml overlay not applied: %q", cfg.ListenAddr)
	}
	if cfg.GracePeriodSec != 15 {
		t.Fatalf("env must win over yaml: %d", cfg.GracePeriodSec)
	}
}
