package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/notify"
	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/tracker"
)

// Alert keys stored in the AlertStore.
const (
	keyOffline  = "connectivity_offline"
	keyDegraded = "connectivity_degraded"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	AlertOnDegraded bool
	Cooldown        time.Duration
}

// Alerter turns tracker events into notifications. Offline and Degraded
// alerts are held back by the cooldown; recovery alerts are not.
type Alerter struct {
	alertDB  repo.AlertStore
	notifier notify.Notifier
	cfg      AlerterConfig
	clock    clock.Clock
	log      *zap.Logger
}

func NewAlerter(
	alertDB repo.AlertStore,
	notifier notify.Notifier,
	cfg AlerterConfig,
	log *zap.Logger,
) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
		clock:    clock.New(),
		log:      log,
	}
}

// Handle sends at most one notification for ev. Store and send errors are
// logged and returned; they never block monitoring.
func (a *Alerter) Handle(ctx context.Context, ev tracker.Event) error {
	switch ev.Kind {
	case tracker.Offline:
		return a.maybeSend(ctx, keyOffline, domain.Offline, "🔴 Connectivity OFFLINE", offlineText(ev))
	case tracker.Degraded:
		if !a.cfg.AlertOnDegraded {
			return nil
		}
		return a.maybeSend(ctx, keyDegraded, domain.Degraded, "🟠 Connectivity DEGRADED",
			"Failing: "+strings.Join(ev.Failing, ", "))
	case tracker.Recovered:
		return a.recovered(ctx, ev)
	}
	return nil
}

func (a *Alerter) recovered(ctx context.Context, ev tracker.Event) error {
	rec, err := a.alertDB.AlertState(ctx, keyOffline)
	if err != nil {
		return fmt.Errorf("load alert state %s: %w", keyOffline, err)
	}
	next := repo.AlertRecord{Key: keyOffline, Level: domain.Online}
	if rec != nil {
		next.Sent = rec.Sent
	}

	var sendErr error
	if a.cfg.AlertOnRecovery {
		sendErr = a.notifier.Send(ctx, "🟢 Connectivity RESTORED", recoveredText(ev))
		if sendErr != nil {
			a.log.Warn("alert_send_failed", zap.String("key", keyOffline), zap.Error(sendErr))
		}
		now := a.clock.Now()
		next.LastSentAt = &now
		next.Sent++
	}
	if err := a.alertDB.SaveAlertState(ctx, next); err != nil {
		return fmt.Errorf("save alert state %s: %w", keyOffline, err)
	}
	return sendErr
}

func (a *Alerter) maybeSend(ctx context.Context, key string, level domain.Level, title, text string) error {
	now := a.clock.Now()
	rec, err := a.alertDB.AlertState(ctx, key)
	if err != nil {
		return fmt.Errorf("load alert state %s: %w", key, err)
	}
	if !rec.CooledDown(now, a.cfg.Cooldown) {
		a.log.Info("alert_suppressed", zap.String("key", key), zap.Duration("cooldown", a.cfg.Cooldown))
		return nil
	}

	sendErr := a.notifier.Send(ctx, title, text)
	if sendErr != nil {
		a.log.Warn("alert_send_failed", zap.String("key", key), zap.Error(sendErr))
	}
	next := repo.AlertRecord{Key: key, Level: level, LastSentAt: &now, Sent: 1}
	if rec != nil {
		next.Sent = rec.Sent + 1
	}
	if err := a.alertDB.SaveAlertState(ctx, next); err != nil {
		return fmt.Errorf("save alert state %s: %w", key, err)
	}
	return sendErr
}

func offlineText(ev tracker.Event) string {
	var b strings.Builder
	if o := ev.Outage; o != nil {
		fmt.Fprintf(&b, "Started: %s\n", o.StartTime.Format(time.RFC3339))
		fmt.Fprintf(&b, "Affected: %s\n", strings.Join(o.AffectedEndpoints, ", "))
		if o.FailingHop != nil {
			fmt.Fprintf(&b, "Failing hop: %d %s (%s)", *o.FailingHop, o.FailingHopAddress, domain.HopLabel(*o.FailingHop))
		} else {
			b.WriteString("Failing hop: not identified")
		}
	} else {
		fmt.Fprintf(&b, "Affected: %s", strings.Join(ev.Failing, ", "))
	}
	return b.String()
}

func recoveredText(ev tracker.Event) string {
	o := ev.Outage
	if o == nil || o.DurationSecs == nil {
		return "Connectivity is back."
	}
	return fmt.Sprintf("Outage started %s lasted %s.",
		o.StartTime.Format(time.RFC3339),
		time.Duration(*o.DurationSecs*float64(time.Second)).Round(time.Second))
}
