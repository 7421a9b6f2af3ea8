// Package bootstrap holds the startup steps shared by the daemon, the CLI
// and preflight.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/config"
	"github.com/hamed0406/netvigil/internal/logging"
	"github.com/hamed0406/netvigil/internal/probe"
	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/repo/memory"
	pg "github.com/hamed0406/netvigil/internal/repo/postgres"
)

// LoadConfig reads the config file (the environment's default path when
// path is empty) and applies environment overrides. It returns the path it
// used.
func LoadConfig(path string) (config.Config, string, error) {
	if path == "" {
		p, err := config.EnvironmentFromEnv().ConfigPath()
		if err != nil {
			return config.Config{}, "", err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, path, err
	}
	cfg.ApplyEnv()
	return cfg, path, nil
}

// NewLogger builds the rotating file logger. An empty logging.dir falls
// back to the environment's log directory.
func NewLogger(cfg config.Config, console bool) (*zap.Logger, error) {
	dir := cfg.Logging.Dir
	if dir == "" {
		d, err := config.EnvironmentFromEnv().LogDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return logging.NewLogger(logging.Options{
		Dir:           dir,
		Level:         cfg.Logging.Level,
		Console:       console || cfg.Logging.Console,
		RetentionDays: cfg.Storage.RetentionDays,
	})
}

// OpenStore returns the Postgres store when a DSN is configured, otherwise
// an in-memory one. The Postgres schema is migrated on open.
func OpenStore(ctx context.Context, dsn string, log *zap.Logger) (repo.Store, error) {
	if dsn == "" {
		log.Info("store_memory")
		return memory.New(), nil
	}
	s, err := pg.New(ctx, dsn, log)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("store_postgres")
	return s, nil
}

// NewProber builds the configured prober. The ICMP prober's sockets live
// until ctx is cancelled.
func NewProber(ctx context.Context, cfg config.Config, log *zap.Logger) (probe.Prober, error) {
	switch cfg.Probe.Mode {
	case config.ProbeICMP:
		p := probe.NewICMPPinger(cfg.PingTimeout(), log)
		p.Privileged = cfg.Probe.Privileged
		if err := p.Start(ctx); err != nil {
			return nil, fmt.Errorf("start icmp pinger: %w", err)
		}
		return p, nil
	default:
		return probe.NewExecPinger(cfg.PingTimeout(), log), nil
	}
}
