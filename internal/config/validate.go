package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

var (
	ErrNoEndpoints  = errors.New("at least one endpoint is required")
	ErrBadThreshold = errors.New("thresholds must be >= 1")
	ErrBadInterval  = errors.New("ping interval and timeout must be > 0")
)

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error

	if c.Monitor.PingIntervalMS <= 0 || c.Monitor.PingTimeoutMS <= 0 {
		err = multierr.Append(err, ErrBadInterval)
	}
	m := c.Monitor
	if m.DegradedThreshold < 1 || m.OfflineThreshold < 1 || m.RecoveryThreshold < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: degraded=%d offline=%d recovery=%d",
			ErrBadThreshold, m.DegradedThreshold, m.OfflineThreshold, m.RecoveryThreshold))
	}

	eps := c.ProbeEndpoints()
	if len(eps) == 0 {
		err = multierr.Append(err, ErrNoEndpoints)
	}
	seen := map[string]bool{}
	for i, ep := range eps {
		addr := strings.TrimSpace(ep.Address)
		if addr == "" {
			err = multierr.Append(err, fmt.Errorf("endpoint %d (%q) has no address", i, ep.Name))
			continue
		}
		if seen[addr] {
			err = multierr.Append(err, fmt.Errorf("endpoint address %s is listed twice", addr))
		}
		seen[addr] = true
	}

	switch c.Probe.Mode {
	case ProbeExec, ProbeICMP:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown probe mode %q", c.Probe.Mode))
	}
	if c.Probe.Concurrency < 0 {
		err = multierr.Append(err, errors.New("probe concurrency must be >= 0"))
	}

	if c.Diagnosis.HopTimeoutMS <= 0 || c.Diagnosis.MaxHops <= 0 || c.Diagnosis.MaxHops > 255 {
		err = multierr.Append(err, fmt.Errorf("diagnosis needs hop_timeout_ms > 0 and 1 <= max_hops <= 255, got %d/%d",
			c.Diagnosis.HopTimeoutMS, c.Diagnosis.MaxHops))
	}

	switch c.Storage.PingLog {
	case PingLogChanges, PingLogAll, PingLogOff:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown ping_log policy %q", c.Storage.PingLog))
	}
	if c.Storage.RetentionDays < 0 {
		err = multierr.Append(err, errors.New("retention_days must be >= 0"))
	}
	if c.Storage.CleanupSchedule != "" {
		if _, perr := cron.ParseStandard(c.Storage.CleanupSchedule); perr != nil {
			err = multierr.Append(err, fmt.Errorf("cleanup_schedule: %w", perr))
		}
	}

	if c.Logging.Level != "" {
		if _, perr := zapcore.ParseLevel(c.Logging.Level); perr != nil {
			err = multierr.Append(err, fmt.Errorf("logging.level: %w", perr))
		}
	}
	return err
}

// Warnings lists settings that are legal but probably not intended.
func (c Config) Warnings() []string {
	var w []string
	m := c.Monitor
	if m.RecoveryThreshold > m.DegradedThreshold || m.DegradedThreshold > m.OfflineThreshold {
		w = append(w, fmt.Sprintf("thresholds usually satisfy recovery <= degraded <= offline, got %d/%d/%d",
			m.RecoveryThreshold, m.DegradedThreshold, m.OfflineThreshold))
	}
	if m.PingTimeoutMS > m.PingIntervalMS {
		w = append(w, fmt.Sprintf("ping timeout %dms exceeds the interval %dms; ticks will be skipped",
			m.PingTimeoutMS, m.PingIntervalMS))
	}
	if c.Endpoints.Primary != "" {
		found := false
		for _, ep := range c.ProbeEndpoints() {
			if ep.Address == c.Endpoints.Primary {
				found = true
			}
		}
		if !found {
			w = append(w, "primary diagnosis target "+c.Endpoints.Primary+" is not a probed endpoint")
		}
	}
	return w
}
