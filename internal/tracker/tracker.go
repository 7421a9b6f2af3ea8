// Package tracker turns a stream of probe outcomes into connectivity levels
// and outage records.
//
// The tracker applies hysteresis in both directions. It takes
// Thresholds.Degraded consecutive failing ticks to leave Online, and
// Thresholds.Offline to go from Degraded to Offline. Coming back needs
// Thresholds.Recovery consecutive all-healthy ticks. A tick counts as failing
// as soon as any single endpoint is failing.
//
// Process must be called from one goroutine. The read accessors may be
// called from anywhere.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/pathtrace"
)

// Thresholds are all expected to be >= 1. Recovery <= Degraded <= Offline is
// the usual shape but is not required.
type Thresholds struct {
	Degraded int `yaml:"degraded_threshold" json:"degraded_threshold"`
	Offline  int `yaml:"offline_threshold" json:"offline_threshold"`
	Recovery int `yaml:"recovery_threshold" json:"recovery_threshold"`
}

// Diagnoser runs a path trace. pathtrace.Tracer satisfies it.
type Diagnoser interface {
	Trace(ctx context.Context, target string) domain.PathTrace
}

type Tracker struct {
	mu sync.RWMutex

	th        Thresholds
	order     []string
	endpoints map[string]*EndpointState
	level     domain.Level
	outage    *domain.Outage
	aggFail   int
	aggOK     int
	lastTrace *domain.PathTrace

	primary string
	diag    Diagnoser
	clock   clock.Clock
	logger  *zap.Logger
}

type Option func(*Tracker)

func WithClock(c clock.Clock) Option { return func(t *Tracker) { t.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(t *Tracker) { t.logger = l } }

// New builds a tracker in the Online level. primary is the diagnosis target;
// when empty the first endpoint is used. diag may be nil, in which case
// outages are opened without a failing hop.
func New(th Thresholds, endpoints []domain.Endpoint, primary string, diag Diagnoser, opts ...Option) *Tracker {
	t := &Tracker{
		th:        th,
		endpoints: make(map[string]*EndpointState, len(endpoints)),
		level:     domain.Online,
		primary:   primary,
		diag:      diag,
		clock:     clock.New(),
		logger:    zap.NewNop(),
	}
	for _, ep := range endpoints {
		if _, dup := t.endpoints[ep.Address]; dup {
			continue
		}
		t.order = append(t.order, ep.Address)
		t.endpoints[ep.Address] = &EndpointState{Endpoint: ep}
	}
	if t.primary == "" && len(t.order) > 0 {
		t.primary = t.order[0]
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Process folds one outcome into the running state and reports what, if
// anything, changed. Entering Offline runs the diagnoser before returning,
// so no further outcome is processed until the trace is done.
func (t *Tracker) Process(ctx context.Context, o domain.ProbeOutcome) Event {
	t.mu.Lock()

	if st, ok := t.endpoints[o.Address]; ok {
		st.update(o)
	}

	failing := t.failingLocked()
	if len(failing) > 0 {
		t.aggOK = 0
		t.aggFail++
	} else {
		t.aggFail = 0
		t.aggOK++
	}
	healthy := len(failing) == 0
	prev := t.level

	switch t.level {
	case domain.Online:
		if t.aggFail >= t.th.Degraded {
			t.level = domain.Degraded
			t.logger.Warn("state_degraded",
				zap.Int("consecutive_failures", t.aggFail),
				zap.Strings("failing", failing),
			)
			ev := Event{Kind: Degraded, Level: t.level, Previous: prev, Failing: failing}
			t.mu.Unlock()
			return ev
		}

	case domain.Degraded:
		if healthy && t.aggOK >= t.th.Recovery {
			t.level = domain.Online
			t.aggFail = 0
			t.logger.Info("state_online", zap.Int("consecutive_successes", t.aggOK))
			ev := Event{Kind: NoChange, Level: t.level, Previous: prev}
			t.mu.Unlock()
			return ev
		}
		if t.aggFail >= t.th.Offline {
			t.level = domain.Offline
			t.openOutageLocked(failing)
			t.logger.Error("outage_opened",
				zap.Int("consecutive_failures", t.aggFail),
				zap.Strings("affected", failing),
			)
			t.mu.Unlock()
			return t.diagnose(ctx, prev, failing)
		}

	case domain.Offline:
		if healthy && t.aggOK >= t.th.Recovery {
			t.level = domain.Online
			t.aggFail = 0
			closed := t.closeOutageLocked("")
			if closed == nil {
				// Already force-closed; nothing left to report.
				t.logger.Info("state_online", zap.Int("consecutive_successes", t.aggOK))
				ev := Event{Kind: NoChange, Level: t.level, Previous: prev}
				t.mu.Unlock()
				return ev
			}
			t.logger.Info("outage_closed",
				zap.Int("consecutive_successes", t.aggOK),
				zap.Float64("duration_secs", *closed.DurationSecs),
			)
			ev := Event{Kind: Recovered, Level: t.level, Previous: prev, Outage: closed}
			t.mu.Unlock()
			return ev
		}
	}

	ev := Event{Kind: NoChange, Level: t.level, Previous: prev}
	t.mu.Unlock()
	return ev
}

// diagnose traces the primary target with the lock released and attaches
// the failing hop to the outage that was just opened.
func (t *Tracker) diagnose(ctx context.Context, prev domain.Level, failing []string) Event {
	var trace *domain.PathTrace
	if t.diag != nil && t.primary != "" {
		tr := t.diag.Trace(ctx, t.primary)
		tr.Trigger = domain.TriggerStateChange
		trace = &tr
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if trace != nil {
		t.lastTrace = trace
		if hop, addr, ok := pathtrace.FailingHop(*trace); ok && t.outage != nil {
			t.outage.FailingHop = &hop
			t.outage.FailingHopAddress = addr
		}
		t.logger.Info("diagnosis_done",
			zap.String("target", trace.Target),
			zap.Int("hops", len(trace.Hops)),
			zap.Bool("reached", trace.ReachedTarget),
			zap.String("error", trace.Error),
		)
	}

	ev := Event{
		Kind:     Offline,
		Level:    t.level,
		Previous: prev,
		Failing:  failing,
		Outage:   t.outage.Clone(),
	}
	if trace != nil {
		cp := *trace
		ev.Trace = &cp
	}
	return ev
}

func (t *Tracker) openOutageLocked(affected []string) {
	if t.outage != nil {
		panic(fmt.Sprintf("tracker: opening an outage while one started at %s is still open", t.outage.StartTime))
	}
	t.outage = domain.NewOutage(affected, t.clock.Now())
}

func (t *Tracker) closeOutageLocked(note string) *domain.Outage {
	if t.outage == nil {
		return nil
	}
	t.outage.Close(t.clock.Now())
	if note != "" {
		t.outage.Notes = note
	}
	closed := t.outage
	t.outage = nil
	return closed
}

func (t *Tracker) failingLocked() []string {
	var out []string
	for _, addr := range t.order {
		if t.endpoints[addr].Failing() {
			out = append(out, addr)
		}
	}
	return out
}

// ForceClose ends the open outage with note and returns it, or returns nil
// when no outage is open. The level is left as is.
func (t *Tracker) ForceClose(note string) *domain.Outage {
	t.mu.Lock()
	defer t.mu.Unlock()
	closed := t.closeOutageLocked(note)
	if closed != nil {
		t.logger.Warn("outage_force_closed", zap.String("note", note))
	}
	return closed
}

// AttachOutageID stamps the stored id onto the open outage.
func (t *Tracker) AttachOutageID(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outage != nil {
		t.outage.ID = id
	}
}

func (t *Tracker) Level() domain.Level {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.level
}

// CurrentOutage returns a copy of the open outage, or nil.
func (t *Tracker) CurrentOutage() *domain.Outage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outage.Clone()
}

// Failing lists the addresses of failing endpoints in configuration order.
func (t *Tracker) Failing() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failingLocked()
}

// EndpointStates returns a copy of every endpoint's counters in
// configuration order.
func (t *Tracker) EndpointStates() []EndpointState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.endpointStatesLocked()
}

func (t *Tracker) endpointStatesLocked() []EndpointState {
	out := make([]EndpointState, 0, len(t.order))
	for _, addr := range t.order {
		out = append(out, t.endpoints[addr].copy())
	}
	return out
}

// LastDiagnosis returns the most recent trace run on entering Offline.
func (t *Tracker) LastDiagnosis() *domain.PathTrace {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastTrace == nil {
		return nil
	}
	cp := *t.lastTrace
	return &cp
}

// Snapshot reads every accessor under one lock.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		Level:              t.level,
		Outage:             t.outage.Clone(),
		Endpoints:          t.endpointStatesLocked(),
		Failing:            t.failingLocked(),
		AggregateFailures:  t.aggFail,
		AggregateSuccesses: t.aggOK,
		Primary:            t.primary,
	}
}
