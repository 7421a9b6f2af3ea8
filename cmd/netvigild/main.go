package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/bootstrap"
	"github.com/hamed0406/netvigil/internal/config"
	"github.com/hamed0406/netvigil/internal/netinfo"
)

var version = "dev"

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 15 * time.Second
)

type options struct {
	configPath  string
	logLevel    string
	addr        string
	foreground  bool
	showVersion bool
	showHelp    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, errOut io.Writer) (options, *pflag.FlagSet, error) {
	var opts options
	flags := pflag.NewFlagSet("netvigild", pflag.ContinueOnError)
	flags.SetOutput(errOut)
	flags.Usage = func() {
		fmt.Fprintf(errOut, "netvigild monitors internet connectivity and records outages.\n\nUsage: netvigild [flags]\n\nFlags:\n")
		flags.PrintDefaults()
	}

	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default: per-environment data dir)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	flags.StringVar(&opts.addr, "addr", "", "override api.addr")
	flags.BoolVarP(&opts.foreground, "foreground", "f", false, "also log to the terminal")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "show version and exit")
	flags.BoolVarP(&opts.showHelp, "help", "h", false, "show this help and exit")

	err := flags.Parse(args)
	return opts, flags, err
}

func run(args []string, out, errOut io.Writer) int {
	opts, flags, err := parseFlags(args, errOut)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, err)
		return 2
	}
	if opts.showHelp {
		flags.Usage()
		return 0
	}
	if opts.showVersion {
		fmt.Fprintf(out, "netvigild %s\n", version)
		return 0
	}

	cfg, path, err := loadConfig(opts, flags)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return 2
	}
	gwErr := cfg.ResolveGateway(netinfo.Discoverer(netinfo.DefaultDiscoverTimeout))
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(errOut, "invalid config %s:\n%s\n", path, err)
		return 2
	}

	logger, err := bootstrap.NewLogger(cfg, opts.foreground)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("netvigild_starting",
		zap.String("version", version),
		zap.String("config", path),
		zap.String("summary", cfg.Describe()),
	)
	if gwErr != nil {
		logger.Warn("gateway_detection_failed", zap.Error(gwErr))
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config_warning", zap.String("detail", w))
	}

	app := fx.New(appOptions(cfg, logger)...)
	if err := app.Err(); err != nil {
		logger.Error("app_build_failed", zap.Error(err))
		return 1
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Error("app_start_failed", zap.Error(err))
		return 1
	}

	sig := <-app.Done()
	logger.Info("netvigild_stopping", zap.Stringer("signal", sig))

	stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
	defer stop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Error("app_stop_failed", zap.Error(err))
		return 1
	}
	return 0
}

// loadConfig reads the config file and applies flag overrides on top of
// the environment ones.
func loadConfig(opts options, flags *pflag.FlagSet) (config.Config, string, error) {
	cfg, path, err := bootstrap.LoadConfig(opts.configPath)
	if err != nil {
		return config.Config{}, path, err
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("addr") {
		cfg.API.Addr = opts.addr
	}
	return cfg, path, nil
}
