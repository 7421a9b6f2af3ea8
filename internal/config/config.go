package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/netvigil/internal/domain"
)

// GatewayAuto asks the daemon to discover the default gateway at startup.
const GatewayAuto = "auto"

// Config is the whole daemon configuration as stored in config.yaml.
type Config struct {
	Monitor   MonitorConfig   `yaml:"monitor"`
	Probe     ProbeConfig     `yaml:"probe"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	API       APIConfig       `yaml:"api"`
}

type MonitorConfig struct {
	PingIntervalMS    int `yaml:"ping_interval_ms"`
	PingTimeoutMS     int `yaml:"ping_timeout_ms"`
	DegradedThreshold int `yaml:"degraded_threshold"`
	OfflineThreshold  int `yaml:"offline_threshold"`
	RecoveryThreshold int `yaml:"recovery_threshold"`
}

type ProbeConfig struct {
	Mode        string `yaml:"mode"`        // exec | icmp
	Concurrency int    `yaml:"concurrency"` // 0 = one goroutine per endpoint
	Privileged  *bool  `yaml:"privileged,omitempty"`
}

type DiagnosisConfig struct {
	HopTimeoutMS int `yaml:"hop_timeout_ms"`
	MaxHops      int `yaml:"max_hops"`
}

type EndpointsConfig struct {
	Gateway string            `yaml:"gateway,omitempty"` // address, "auto", or empty
	Primary string            `yaml:"primary,omitempty"`
	Targets []domain.Endpoint `yaml:"targets"`
}

type StorageConfig struct {
	DatabaseURL     string `yaml:"database_url,omitempty"` // empty = in-memory
	RetentionDays   int    `yaml:"retention_days"`
	PingLog         string `yaml:"ping_log"` // changes | all | off
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir,omitempty"`
	Console bool   `yaml:"console"`
}

type AlertsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty"`
	OnRecovery      bool   `yaml:"on_recovery"`
	OnDegraded      bool   `yaml:"on_degraded"`
	CooldownMinutes int    `yaml:"cooldown_minutes"`
}

type APIConfig struct {
	Addr           string   `yaml:"addr"`
	PublicKeys     []string `yaml:"public_keys,omitempty"`
	AdminKeys      []string `yaml:"admin_keys,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	PublicRPM      int      `yaml:"public_rpm"`
	PublicBurst    int      `yaml:"public_burst"`
	AdminRPM       int      `yaml:"admin_rpm"`
	AdminBurst     int      `yaml:"admin_burst"`
}

// Probe modes and ping log policies.
const (
	ProbeExec = "exec"
	ProbeICMP = "icmp"

	PingLogChanges = "changes"
	PingLogAll     = "all"
	PingLogOff     = "off"
)

// Default returns sensible defaults in case no configuration file is provided.
func Default() Config {
	return Config{
		Monitor: MonitorConfig{
			PingIntervalMS:    1000,
			PingTimeoutMS:     2000,
			DegradedThreshold: 3,
			OfflineThreshold:  5,
			RecoveryThreshold: 2,
		},
		Probe: ProbeConfig{Mode: ProbeExec},
		Diagnosis: DiagnosisConfig{
			HopTimeoutMS: 2000,
			MaxHops:      30,
		},
		Endpoints: EndpointsConfig{
			Targets: []domain.Endpoint{
				{Name: "Google DNS", Address: "8.8.8.8"},
				{Name: "Cloudflare", Address: "1.1.1.1"},
			},
		},
		Storage: StorageConfig{
			RetentionDays:   90,
			PingLog:         PingLogChanges,
			CleanupSchedule: "@daily",
		},
		Logging: LoggingConfig{Level: "info"},
		Alerts: AlertsConfig{
			OnRecovery:      true,
			CooldownMinutes: 10,
		},
		API: APIConfig{
			Addr:        "127.0.0.1:8080",
			PublicRPM:   60,
			PublicBurst: 20,
			AdminRPM:    30,
			AdminBurst:  10,
		},
	}
}

// Load reads configuration from a yaml file. A missing file falls back to
// defaults; fields absent from the file keep their default value.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as yaml, creating the parent directory. The file is
// replaced atomically.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ProbeEndpoints returns the probe list: the gateway first when one is known,
// then the configured targets.
func (c Config) ProbeEndpoints() []domain.Endpoint {
	var out []domain.Endpoint
	gw := strings.TrimSpace(c.Endpoints.Gateway)
	if gw != "" && gw != GatewayAuto {
		out = append(out, domain.Endpoint{Name: "Gateway", Address: gw})
	}
	return append(out, c.Endpoints.Targets...)
}

// PrimaryTarget is the address path diagnosis runs against.
func (c Config) PrimaryTarget() string {
	if c.Endpoints.Primary != "" {
		return c.Endpoints.Primary
	}
	if eps := c.ProbeEndpoints(); len(eps) > 0 {
		return eps[0].Address
	}
	return ""
}

// ResolveGateway replaces "auto" with the discovered gateway address. When
// discovery fails the gateway is dropped and the error returned.
func (c *Config) ResolveGateway(discover func() (string, error)) error {
	if c.Endpoints.Gateway != GatewayAuto {
		return nil
	}
	addr, err := discover()
	if err != nil {
		c.Endpoints.Gateway = ""
		return fmt.Errorf("discover gateway: %w", err)
	}
	c.Endpoints.Gateway = addr
	return nil
}

func (c Config) PingInterval() time.Duration {
	return time.Duration(c.Monitor.PingIntervalMS) * time.Millisecond
}

func (c Config) PingTimeout() time.Duration {
	return time.Duration(c.Monitor.PingTimeoutMS) * time.Millisecond
}

func (c Config) HopTimeout() time.Duration {
	return time.Duration(c.Diagnosis.HopTimeoutMS) * time.Millisecond
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

func (c Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alerts.CooldownMinutes) * time.Minute
}
