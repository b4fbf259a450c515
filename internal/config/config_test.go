package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got, want := cfg.CDPURL(), "http://127.0.0.1:9222"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if cfg.Cooldown() != 5*time.Second {
		t.Fatalf("Cooldown() = %v; want 5s", cfg.Cooldown())
	}
	if cfg.ScanInterval() != 10*time.Second {
		t.Fatalf("ScanInterval() = %v; want 10s", cfg.ScanInterval())
	}
	if cfg.DiscoveryInterval() != 30*time.Second {
		t.Fatalf("DiscoveryInterval() = %v; want 30s", cfg.DiscoveryInterval())
	}
	if cfg.ReconnectInterval() != 5*time.Second {
		t.Fatalf("ReconnectInterval() = %v; want 5s", cfg.ReconnectInterval())
	}
	if cfg.StatusPoll() != 100*time.Millisecond {
		t.Fatalf("StatusPoll() = %v; want 100ms", cfg.StatusPoll())
	}
	if cfg.AutoResume {
		t.Fatal("AutoResume default = true; want false")
	}
	if cfg.AutoResumeTimeout() != time.Minute {
		t.Fatalf("AutoResumeTimeout() = %v; want 1m", cfg.AutoResumeTimeout())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SNIPER_CDP_ADDRESS", "10.0.0.5")
	t.Setenv("SNIPER_CDP_PORT", "9333")
	t.Setenv("SNIPER_COOLDOWN_MS", "2500")
	t.Setenv("SNIPER_AUTO_RESUME", "true")
	t.Setenv("SNIPER_PORT_CANDIDATES", "127.0.0.1:9001, 127.0.0.1:9002")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got, want := cfg.CDPURL(), "http://10.0.0.5:9333"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if cfg.Cooldown() != 2500*time.Millisecond {
		t.Fatalf("Cooldown() = %v; want 2.5s", cfg.Cooldown())
	}
	if !cfg.AutoResume {
		t.Fatal("AutoResume = false; want true")
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:9002" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
}

func TestLoadRejectsNonPositiveCooldown(t *testing.T) {
	t.Setenv("SNIPER_COOLDOWN_MS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero cooldown")
	}

	t.Setenv("SNIPER_COOLDOWN_MS", "-100")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative cooldown")
	}
}

func TestLoadRejectsNonPositiveStatusPoll(t *testing.T) {
	t.Setenv("SNIPER_STATUS_POLL_MS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero status poll")
	}
}
