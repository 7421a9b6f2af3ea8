package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hamed0406/netvigil/internal/bootstrap"
	"github.com/hamed0406/netvigil/internal/config"
	"github.com/hamed0406/netvigil/internal/httpapi"
	apimw "github.com/hamed0406/netvigil/internal/httpapi/middleware"
	"github.com/hamed0406/netvigil/internal/metrics"
	"github.com/hamed0406/netvigil/internal/monitor"
	"github.com/hamed0406/netvigil/internal/notify"
	"github.com/hamed0406/netvigil/internal/pathtrace"
	"github.com/hamed0406/netvigil/internal/probe"
	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/scheduler"
	"github.com/hamed0406/netvigil/internal/tracker"
)

const (
	storeOpenTimeout  = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func appOptions(cfg config.Config, logger *zap.Logger) []fx.Option {
	return []fx.Option{
		fx.Supply(cfg, logger),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx").WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))}
		}),
		fx.Provide(
			newLifetime,
			newStore,
			newProber,
			newTracer,
			newTracker,
			metrics.New,
			newHub,
			newAlerter,
			newScheduler,
			newService,
			newServer,
			newJanitor,
		),
		fx.Invoke(runMonitor, serveAPI, startJanitor),
	}
}

// lifetime is cancelled when the app stops. Background loops derive their
// contexts from it.
type lifetime struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newLifetime(lc fx.Lifecycle) *lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return &lifetime{ctx: ctx, cancel: cancel}
}

func newStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
	defer cancel()
	s, err := bootstrap.OpenStore(ctx, cfg.Storage.DatabaseURL, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return s, nil
}

func newProber(lt *lifetime, cfg config.Config, logger *zap.Logger) (probe.Prober, error) {
	return bootstrap.NewProber(lt.ctx, cfg, logger.Named("probe"))
}

func newTracer(cfg config.Config, logger *zap.Logger) *pathtrace.Tracer {
	return pathtrace.New(cfg.HopTimeout(), cfg.Diagnosis.MaxHops, logger.Named("pathtrace"))
}

func newTracker(cfg config.Config, tracer *pathtrace.Tracer, logger *zap.Logger) *tracker.Tracker {
	th := tracker.Thresholds{
		Degraded: cfg.Monitor.DegradedThreshold,
		Offline:  cfg.Monitor.OfflineThreshold,
		Recovery: cfg.Monitor.RecoveryThreshold,
	}
	return tracker.New(th, cfg.ProbeEndpoints(), cfg.PrimaryTarget(), tracer,
		tracker.WithLogger(logger.Named("tracker")))
}

func newHub(logger *zap.Logger) *httpapi.Hub {
	return httpapi.NewHub(logger.Named("events"))
}

func newAlerter(store repo.Store, cfg config.Config, logger *zap.Logger) *scheduler.Alerter {
	notifiers := notify.Multi{notify.Log{Logger: logger.Named("alert")}}
	if slack := notify.NewSlack(cfg.Alerts.SlackWebhookURL); slack != nil {
		notifiers = append(notifiers, slack)
	}
	return scheduler.NewAlerter(store, notifiers, scheduler.AlerterConfig{
		AlertOnRecovery: cfg.Alerts.OnRecovery,
		AlertOnDegraded: cfg.Alerts.OnDegraded,
		Cooldown:        cfg.AlertCooldown(),
	}, logger.Named("alerter"))
}

func newScheduler(cfg config.Config, prober probe.Prober, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(logger.Named("scheduler"), prober, cfg.ProbeEndpoints(),
		cfg.PingInterval(), cfg.PingTimeout(), cfg.Probe.Concurrency)
}

func newService(
	cfg config.Config,
	logger *zap.Logger,
	tr *tracker.Tracker,
	store repo.Store,
	m *metrics.Metrics,
	alerter *scheduler.Alerter,
	hub *httpapi.Hub,
) *monitor.Service {
	svc := monitor.NewService(logger.Named("monitor"), tr, store, cfg.Storage.PingLog)
	svc.Metrics = m
	svc.Alerter = alerter
	svc.Publisher = hub
	return svc
}

func newServer(
	logger *zap.Logger,
	tr *tracker.Tracker,
	store repo.Store,
	tracer *pathtrace.Tracer,
	m *metrics.Metrics,
	hub *httpapi.Hub,
) *httpapi.Server {
	return httpapi.NewServer(logger.Named("api"), tr, store, tracer, m, hub)
}

func newJanitor(cfg config.Config, store repo.Store, logger *zap.Logger) *scheduler.Janitor {
	return scheduler.NewJanitor(logger.Named("janitor"), store, cfg.Retention(), cfg.Storage.CleanupSchedule)
}

// runMonitor starts the probe loop and the monitor service on it. Stopping
// cancels the loop and waits for the service to persist any open outage.
func runMonitor(lc fx.Lifecycle, lt *lifetime, sched *scheduler.Scheduler, svc *monitor.Service, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(lt.ctx)
	done := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			outcomes, err := sched.Start(ctx)
			if err != nil {
				cancel()
				return err
			}
			go func() { done <- svc.Run(ctx, outcomes) }()
			logger.Info("monitor_started",
				zap.Int("endpoints", len(sched.Endpoints)),
				zap.Duration("interval", sched.Interval))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func serveAPI(lc fx.Lifecycle, cfg config.Config, srv *httpapi.Server, logger *zap.Logger) {
	keys := apimw.Keys{Public: cfg.API.PublicKeys, Admin: cfg.API.AdminKeys}
	if !keys.Enabled() {
		logger.Warn("api_keys_not_configured", zap.String("addr", cfg.API.Addr))
	}
	hs := &http.Server{
		Addr: cfg.API.Addr,
		Handler: srv.Router(keys, cfg.API.AllowedOrigins,
			cfg.API.PublicRPM, cfg.API.PublicBurst, cfg.API.AdminRPM, cfg.API.AdminBurst),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", hs.Addr)
			if err != nil {
				return err
			}
			logger.Info("api_listen", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("api_serve_failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return hs.Shutdown(ctx)
		},
	})
}

func startJanitor(lc fx.Lifecycle, lt *lifetime, j *scheduler.Janitor) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return j.Start(lt.ctx) },
		OnStop:  j.Stop,
	})
}
