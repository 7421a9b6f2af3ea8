// Package monitor is the host loop: it feeds scheduler outcomes into the
// tracker and hands the resulting events to storage, alerting, metrics and
// live subscribers.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/metrics"
	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/tracker"
)

const (
	ShutdownNote = "monitor shutdown during outage"
	StaleNote    = "closed at startup: monitor stopped during outage"

	shutdownPersistTimeout = 5 * time.Second
)

// Ping log policies, mirroring config.PingLog*.
const (
	PingLogChanges = "changes"
	PingLogAll     = "all"
	PingLogOff     = "off"
)

type Store interface {
	repo.OutageStore
	repo.PingStore
	repo.TraceStore
}

// EventHandler reacts to tracker events. scheduler.Alerter satisfies it.
type EventHandler interface {
	Handle(ctx context.Context, ev tracker.Event) error
}

// Publisher pushes events to live subscribers. httpapi.Hub satisfies it.
type Publisher interface {
	Publish(ev tracker.Event)
}

type sample struct {
	success bool
	latency float64 // rounded ms, NaN when absent
}

type Service struct {
	Logger    *zap.Logger
	Tracker   *tracker.Tracker
	Store     Store
	Metrics   *metrics.Metrics
	Alerter   EventHandler
	Publisher Publisher
	PingLog   string

	last map[string]sample
}

func NewService(logger *zap.Logger, tr *tracker.Tracker, store Store, pingLog string) *Service {
	if pingLog == "" {
		pingLog = PingLogChanges
	}
	return &Service{
		Logger:  logger,
		Tracker: tr,
		Store:   store,
		PingLog: pingLog,
		last:    make(map[string]sample),
	}
}

// Run consumes outcomes in order until ctx is cancelled or the stream
// closes. An outage still open at that point is force-closed and persisted.
func (s *Service) Run(ctx context.Context, outcomes <-chan domain.ProbeOutcome) error {
	if err := s.CloseStale(ctx); err != nil {
		s.Logger.Warn("stale_outage_close_failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case o, ok := <-outcomes:
			if !ok {
				return s.shutdown()
			}
			s.Handle(ctx, o)
		}
	}
}

// Handle processes one outcome. Exported for tests and single-shot use.
func (s *Service) Handle(ctx context.Context, o domain.ProbeOutcome) tracker.Event {
	if s.Metrics != nil {
		s.Metrics.ObserveProbe(o)
	}
	s.logPing(ctx, o)

	ev := s.Tracker.Process(ctx, o)
	if s.Metrics != nil {
		s.Metrics.SetLevel(ev.Previous, ev.Level)
	}

	switch ev.Kind {
	case tracker.Offline:
		s.recordOffline(ctx, &ev)
	case tracker.Recovered:
		s.recordRecovered(ctx, ev)
	case tracker.NoChange:
		if ev.LevelChanged() {
			s.Logger.Info("level_changed", zap.Stringer("from", ev.Previous), zap.Stringer("to", ev.Level))
		}
	}

	if ev.Kind != tracker.NoChange || ev.LevelChanged() {
		if s.Publisher != nil {
			s.Publisher.Publish(ev)
		}
	}
	if s.Alerter != nil && ev.Kind != tracker.NoChange {
		if err := s.Alerter.Handle(ctx, ev); err != nil {
			s.Logger.Warn("alert_failed", zap.Stringer("kind", ev.Kind), zap.Error(err))
		}
	}
	return ev
}

func (s *Service) recordOffline(ctx context.Context, ev *tracker.Event) {
	if s.Metrics != nil {
		s.Metrics.OutageOpened()
	}
	if ev.Outage == nil {
		return
	}
	id, err := s.Store.InsertOutage(ctx, ev.Outage)
	if err != nil {
		s.Logger.Error("store_outage_failed", zap.Error(err))
		return
	}
	s.Tracker.AttachOutageID(id)
	ev.Outage.ID = id

	if ev.Trace == nil {
		return
	}
	ev.Trace.OutageID = &id
	if _, err := s.Store.InsertTrace(ctx, ev.Trace); err != nil {
		s.Logger.Error("store_trace_failed", zap.Int64("outage_id", id), zap.Error(err))
	}
	if s.Metrics != nil {
		s.Metrics.ObserveTrace(*ev.Trace)
	}
}

func (s *Service) recordRecovered(ctx context.Context, ev tracker.Event) {
	if s.Metrics != nil {
		s.Metrics.OutageClosed(ev.Outage)
	}
	if ev.Outage == nil {
		return
	}
	if ev.Outage.ID == 0 {
		// the insert on entering Offline failed; store the closed record now
		id, err := s.Store.InsertOutage(ctx, ev.Outage)
		if err != nil {
			s.Logger.Error("store_recovered_outage_failed", zap.Error(err))
			return
		}
		ev.Outage.ID = id
		return
	}
	if err := s.Store.UpdateOutage(ctx, ev.Outage); err != nil {
		s.Logger.Error("update_outage_failed", zap.Int64("id", ev.Outage.ID), zap.Error(err))
	}
}

// logPing stores o according to the ping log policy. In changes mode a row
// is written only when success flips or the rounded latency moves.
func (s *Service) logPing(ctx context.Context, o domain.ProbeOutcome) {
	switch s.PingLog {
	case PingLogOff:
		return
	case PingLogChanges:
		cur := sample{success: o.Success, latency: math.NaN()}
		if o.LatencyMS != nil {
			cur.latency = math.Round(*o.LatencyMS)
		}
		if prev, ok := s.last[o.Address]; ok && sameSample(prev, cur) {
			return
		}
		s.last[o.Address] = cur
		s.Logger.Info("endpoint_sample",
			zap.String("address", o.Address),
			zap.String("name", o.Name),
			zap.Bool("success", o.Success),
			zap.Float64p("latency_ms", o.LatencyMS),
			zap.String("reason", o.FailureReason),
		)
	}
	if err := s.Store.AppendPing(ctx, o); err != nil {
		s.Logger.Warn("store_ping_failed", zap.String("address", o.Address), zap.Error(err))
	}
}

func sameSample(a, b sample) bool {
	if a.success != b.success {
		return false
	}
	if math.IsNaN(a.latency) || math.IsNaN(b.latency) {
		return math.IsNaN(a.latency) && math.IsNaN(b.latency)
	}
	return a.latency == b.latency
}

// CloseStale closes an outage left open by a previous run that never shut
// down cleanly. The end time is the last stored ping after the outage start,
// or the start itself when there is none.
func (s *Service) CloseStale(ctx context.Context) error {
	o, err := s.Store.OngoingOutage(ctx)
	if err != nil {
		return fmt.Errorf("ongoing outage: %w", err)
	}
	if o == nil {
		return nil
	}
	end := o.StartTime
	if pings, err := s.Store.RecentPings(ctx, "", 1); err == nil && len(pings) == 1 && pings[0].Timestamp.After(end) {
		end = pings[0].Timestamp
	}
	o.Close(end)
	o.Notes = StaleNote
	if err := s.Store.UpdateOutage(ctx, o); err != nil {
		return fmt.Errorf("close stale outage %d: %w", o.ID, err)
	}
	s.Logger.Info("stale_outage_closed", zap.Int64("id", o.ID), zap.Time("end", end))
	return nil
}

func (s *Service) shutdown() error {
	o := s.Tracker.ForceClose(ShutdownNote)
	if o == nil {
		return nil
	}
	if s.Metrics != nil {
		s.Metrics.OutageClosed(o)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownPersistTimeout)
	defer cancel()

	var err error
	if o.ID == 0 {
		// the insert on entering Offline failed; keep the record anyway
		_, err = s.Store.InsertOutage(ctx, o)
	} else {
		err = s.Store.UpdateOutage(ctx, o)
	}
	if err != nil {
		s.Logger.Error("shutdown_persist_failed", zap.Error(err))
		return fmt.Errorf("persist outage on shutdown: %w", err)
	}
	s.Logger.Info("outage_closed_on_shutdown", zap.Int64("id", o.ID), zap.Float64p("duration_secs", o.DurationSecs))
	return nil
}
