package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the trade sniper.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Monitoring cadences and limits
	CooldownMS          int
	ScanIntervalMS      int
	DiscoveryIntervalMS int
	ReconnectIntervalMS int
	StatusPollMS        int
	EvalTimeoutMS       int

	// Pause/resume behavior
	AutoResume          bool
	AutoResumeTimeoutMS int

	// Control API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Logging
	LogLevel string
	LogFile  string

	// Evidence, journaling and notifications
	SnapshotDir    string
	EventDir       string
	NotifyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:          getEnvOrDefault("SNIPER_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:             getEnvIntOrDefault("SNIPER_CDP_PORT", 9222),
		CooldownMS:          getEnvIntOrDefault("SNIPER_COOLDOWN_MS", 5000),
		ScanIntervalMS:      getEnvIntOrDefault("SNIPER_SCAN_INTERVAL_MS", 10000),
		DiscoveryIntervalMS: getEnvIntOrDefault("SNIPER_DISCOVERY_INTERVAL_MS", 30000),
		ReconnectIntervalMS: getEnvIntOrDefault("SNIPER_RECONNECT_INTERVAL_MS", 5000),
		StatusPollMS:        getEnvIntOrDefault("SNIPER_STATUS_POLL_MS", 100),
		EvalTimeoutMS:       getEnvIntOrDefault("SNIPER_EVAL_TIMEOUT_MS", 10000),
		AutoResume:          getEnvBoolOrDefault("SNIPER_AUTO_RESUME", false),
		AutoResumeTimeoutMS: getEnvIntOrDefault("SNIPER_AUTO_RESUME_TIMEOUT_MS", 60000),
		BindAddr:            getEnvOrDefault("SNIPER_BIND_ADDR", "127.0.0.1:8391"),
		PortCandidates:      getEnvListOrDefault("SNIPER_PORT_CANDIDATES", []string{"127.0.0.1:8392", "127.0.0.1:8393"}),
		PortAutoFallback:    getEnvBoolOrDefault("SNIPER_PORT_AUTO_FALLBACK", true),
		LogLevel:            getEnvOrDefault("SNIPER_LOG_LEVEL", "info"),
		LogFile:             getEnvOrDefault("SNIPER_LOG_FILE", "logs/sniper.log"),
		SnapshotDir:         getEnvOrDefault("SNIPER_SNAPSHOT_DIR", "./snapshots"),
		EventDir:            getEnvOrDefault("SNIPER_EVENT_DIR", "./events"),
		NotifyEndpoint:      getEnvOrDefault("SNIPER_NOTIFY_ENDPOINT", ""),
	}

	if cfg.CooldownMS <= 0 {
		return nil, fmt.Errorf("SNIPER_COOLDOWN_MS must be positive, got %d", cfg.CooldownMS)
	}
	if cfg.StatusPollMS <= 0 {
		return nil, fmt.Errorf("SNIPER_STATUS_POLL_MS must be positive, got %d", cfg.StatusPollMS)
	}

	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint of the already-running browser.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func (c *Config) Cooldown() time.Duration     { return time.Duration(c.CooldownMS) * time.Millisecond }
func (c *Config) ScanInterval() time.Duration { return time.Duration(c.ScanIntervalMS) * time.Millisecond }
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.DiscoveryIntervalMS) * time.Millisecond
}
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMS) * time.Millisecond
}
func (c *Config) StatusPoll() time.Duration  { return time.Duration(c.StatusPollMS) * time.Millisecond }
func (c *Config) EvalTimeout() time.Duration { return time.Duration(c.EvalTimeoutMS) * time.Millisecond }
func (c *Config) AutoResumeTimeout() time.Duration {
	return time.Duration(c.AutoResumeTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
