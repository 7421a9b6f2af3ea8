package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/netvigil/internal/bootstrap"
	"github.com/hamed0406/netvigil/internal/config"
	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/netinfo"
	"github.com/hamed0406/netvigil/internal/pathtrace"
	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/report"
	"github.com/hamed0406/netvigil/internal/scheduler"
	"github.com/hamed0406/netvigil/internal/tracker"
)

func (c *cli) status(ctx context.Context, args []string) error {
	fs := c.flagSet("status")
	local := fs.Bool("local", false, "probe once locally instead of asking the daemon")
	configPath := fs.StringP("config", "c", "", "config file for local probing")
	if err := parse(fs, args); err != nil {
		return err
	}

	if !*local {
		var snap tracker.Snapshot
		err := c.api.get(ctx, "/api/status", nil, &snap)
		if err == nil {
			c.style.Status(c.out, snap, c.now())
			return nil
		}
		if !errors.Is(err, errUnreachable) {
			return err
		}
		fmt.Fprintf(c.errOut, "%s; probing once locally\n", err)
	}

	cfg, _, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ResolveGateway(netinfo.Discoverer(netinfo.DefaultDiscoverTimeout)); err != nil {
		fmt.Fprintf(c.errOut, "warning: %s\n", err)
	}
	prober, err := bootstrap.NewProber(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	sched := scheduler.NewScheduler(zap.NewNop(), prober, cfg.ProbeEndpoints(),
		cfg.PingInterval(), cfg.PingTimeout(), cfg.Probe.Concurrency)
	c.style.Samples(c.out, sched.RunOnce(ctx))
	return nil
}

func (c *cli) outages(ctx context.Context, args []string) error {
	fs := c.flagSet("outages")
	last := fs.String("last", "24h", "window to list, e.g. 1h, 7d, 2w")
	if err := parse(fs, args); err != nil {
		return err
	}
	window, err := report.ParsePeriod(*last)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var list []domain.Outage
	err = c.api.get(ctx, "/api/outages", url.Values{"last": {*last}}, &list)
	if errors.Is(err, errUnreachable) {
		list, err = c.localOutages(ctx, window, err)
	}
	if err != nil {
		return err
	}
	c.style.Outages(c.out, list, c.now())
	return nil
}

func (c *cli) stats(ctx context.Context, args []string) error {
	fs := c.flagSet("stats")
	period := fs.String("period", "24h", "period to summarise, e.g. 24h, 7d")
	if err := parse(fs, args); err != nil {
		return err
	}
	window, err := report.ParsePeriod(*period)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var st domain.Stats
	err = c.api.get(ctx, "/api/stats", url.Values{"period": {*period}}, &st)
	if errors.Is(err, errUnreachable) {
		var list []domain.Outage
		if list, err = c.localOutages(ctx, window, err); err == nil {
			now := c.now()
			st = domain.ComputeStats(list, now.Add(-window), now)
		}
	}
	if err != nil {
		return err
	}
	c.style.Stats(c.out, st)
	return nil
}

// localOutages reads history straight from the configured database when the
// daemon is down. Without a database there is nothing to read and apiErr is
// returned as is.
func (c *cli) localOutages(ctx context.Context, window time.Duration, apiErr error) ([]domain.Outage, error) {
	cfg, _, err := bootstrap.LoadConfig("")
	if err != nil || cfg.Storage.DatabaseURL == "" {
		return nil, apiErr
	}
	fmt.Fprintf(c.errOut, "%s; reading the database directly\n", apiErr)
	store, err := bootstrap.OpenStore(ctx, cfg.Storage.DatabaseURL, zap.NewNop())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	now := c.now()
	return store.Outages(ctx, now.Add(-window), now)
}

func (c *cli) trace(ctx context.Context, args []string) error {
	fs := c.flagSet("trace")
	remote := fs.Bool("remote", false, "ask the daemon to run and store the trace")
	maxHops := fs.Int("max-hops", 0, "override diagnosis.max_hops")
	hopTimeout := fs.Duration("hop-timeout", 0, "override diagnosis.hop_timeout_ms, e.g. 1s")
	configPath := fs.StringP("config", "c", "", "config file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("%w: trace takes at most one target", errUsage)
	}
	target := fs.Arg(0)
	if target != "" && !pathtrace.ValidTarget(target) {
		return fmt.Errorf("%w: bad target %q", errUsage, target)
	}

	if *remote {
		var tr domain.PathTrace
		body := map[string]string{"target": target}
		if err := c.api.post(ctx, "/api/trace", body, &tr); err != nil {
			return err
		}
		c.style.Trace(c.out, tr)
		return nil
	}

	cfg, _, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if fs.Changed("max-hops") {
		cfg.Diagnosis.MaxHops = *maxHops
	}
	if fs.Changed("hop-timeout") {
		cfg.Diagnosis.HopTimeoutMS = int(hopTimeout.Milliseconds())
	}
	if target == "" {
		_ = cfg.ResolveGateway(netinfo.Discoverer(netinfo.DefaultDiscoverTimeout))
		target = cfg.PrimaryTarget()
	}
	if target == "" {
		return fmt.Errorf("%w: no target given and none configured", errUsage)
	}

	fmt.Fprintf(c.errOut, "tracing %s (up to %d hops, %s per hop)...\n", target, cfg.Diagnosis.MaxHops, cfg.HopTimeout())
	tr := pathtrace.New(cfg.HopTimeout(), cfg.Diagnosis.MaxHops, zap.NewNop()).Trace(ctx, target)
	c.style.Trace(c.out, tr)
	return nil
}

func (c *cli) initConfig(args []string) error {
	fs := c.flagSet("init")
	force := fs.Bool("force", false, "overwrite an existing config file")
	path := fs.StringP("config", "c", "", "where to write (default: per-environment data dir)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *path == "" {
		p, err := config.EnvironmentFromEnv().ConfigPath()
		if err != nil {
			return err
		}
		*path = p
	}
	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *path)
	}

	cfg := config.Default()
	if gw, err := netinfo.DetectGateway(netinfo.DefaultDiscoverTimeout); err == nil {
		cfg.Endpoints.Gateway = gw
		fmt.Fprintf(c.out, "Detected gateway: %s\n", gw)
	} else {
		cfg.Endpoints.Gateway = config.GatewayAuto
		fmt.Fprintf(c.out, "Gateway not detected (%s); the daemon will retry at startup.\n", err)
	}
	if err := config.Save(*path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Wrote %s\n", *path)
	return nil
}

func (c *cli) configCmd(args []string) error {
	fs := c.flagSet("config")
	path := fs.StringP("config", "c", "", "config file")
	if err := parse(fs, args); err != nil {
		return err
	}
	switch fs.Arg(0) {
	case "show":
		cfg, _, err := bootstrap.LoadConfig(*path)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case "path":
		p := *path
		if p == "" {
			var err error
			if p, err = config.EnvironmentFromEnv().ConfigPath(); err != nil {
				return err
			}
		}
		fmt.Fprintln(c.out, p)
		return nil
	default:
		return fmt.Errorf("%w: config show|path", errUsage)
	}
}

func (c *cli) cleanup(ctx context.Context, args []string) error {
	fs := c.flagSet("cleanup")
	days := fs.Int("days", 0, "keep this many days (default: storage.retention_days)")
	path := fs.StringP("config", "c", "", "config file")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, _, err := bootstrap.LoadConfig(*path)
	if err != nil {
		return err
	}
	if fs.Changed("days") {
		cfg.Storage.RetentionDays = *days
	}
	if cfg.Storage.RetentionDays <= 0 {
		return fmt.Errorf("%w: --days must be positive", errUsage)
	}
	if cfg.Storage.DatabaseURL == "" {
		fmt.Fprintln(c.out, "No database configured; nothing to prune.")
		return nil
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Storage.DatabaseURL, zap.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()
	return c.prune(ctx, store, cfg.Retention())
}

func (c *cli) prune(ctx context.Context, store repo.Pruner, retention time.Duration) error {
	j := scheduler.NewJanitor(zap.NewNop(), store, retention, "")
	counts, err := j.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Pruned %s rows older than %d days (%s pings, %s traces, %s outages).\n",
		humanize.Comma(counts.Total()), int(retention.Hours()/24),
		humanize.Comma(counts.Pings), humanize.Comma(counts.Traces), humanize.Comma(counts.Outages))
	return nil
}
