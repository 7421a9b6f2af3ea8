package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment selects the data directory so development runs never touch
// production data.
type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
	Test        Environment = "test"
)

var ErrNoConfigDir = errors.New("could not determine config directory")

// EnvironmentFromEnv reads NETVIGIL_ENV. Anything unrecognised means
// production.
func EnvironmentFromEnv() Environment {
	switch strings.ToLower(os.Getenv("NETVIGIL_ENV")) {
	case "development", "dev":
		return Development
	case "test":
		return Test
	default:
		return Production
	}
}

func (e Environment) IsDev() bool { return e == Development || e == Test }

// DataDir is where config, logs, and state live for e. NETVIGIL_HOME
// overrides the base directory.
func (e Environment) DataDir() (string, error) {
	base := os.Getenv("NETVIGIL_HOME")
	if base == "" {
		dir, err := os.UserConfigDir()
		if err != nil || dir == "" {
			return "", ErrNoConfigDir
		}
		base = filepath.Join(dir, "netvigil")
	}
	switch e {
	case Development:
		return filepath.Join(base, "dev"), nil
	case Test:
		return filepath.Join(base, "test"), nil
	default:
		return base, nil
	}
}

func (e Environment) ConfigPath() (string, error) {
	dir, err := e.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func (e Environment) LogDir() (string, error) {
	dir, err := e.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// ApplyEnv overrides file values with environment variables, the way the
// container deployment configures the daemon.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv("NETVIGIL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	// Database (empty means use in-memory store)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Alerts.SlackWebhookURL = v
	}
	if v := os.Getenv("NETVIGIL_PROBE_MODE"); v != "" {
		c.Probe.Mode = v
	}
	if v := os.Getenv("NETVIGIL_GATEWAY"); v != "" {
		c.Endpoints.Gateway = v
	}
	if keys := splitList(os.Getenv("PUBLIC_API_KEYS")); len(keys) > 0 {
		c.API.PublicKeys = keys
	}
	if keys := splitList(os.Getenv("ADMIN_API_KEYS")); len(keys) > 0 {
		c.API.AdminKeys = keys
	}
	if origins := splitList(os.Getenv("ALLOWED_ORIGINS")); len(origins) > 0 {
		c.API.AllowedOrigins = origins
	}

	intEnv("NETVIGIL_INTERVAL_MS", &c.Monitor.PingIntervalMS)
	intEnv("NETVIGIL_TIMEOUT_MS", &c.Monitor.PingTimeoutMS)
	intEnv("NETVIGIL_RETENTION_DAYS", &c.Storage.RetentionDays)
	intEnv("PUBLIC_RPM", &c.API.PublicRPM)
	intEnv("PUBLIC_BURST", &c.API.PublicBurst)
	intEnv("ADMIN_RPM", &c.API.AdminRPM)
	intEnv("ADMIN_BURST", &c.API.AdminBurst)
}

func intEnv(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Describe is a one-line summary for startup logs.
func (c Config) Describe() string {
	return fmt.Sprintf("endpoints=%d interval=%s timeout=%s thresholds=%d/%d/%d probe=%s",
		len(c.ProbeEndpoints()), c.PingInterval(), c.PingTimeout(),
		c.Monitor.DegradedThreshold, c.Monitor.OfflineThreshold, c.Monitor.RecoveryThreshold,
		c.Probe.Mode)
}
