package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/hamed0406/netvigil/internal/domain"
)

var (
	google     = domain.Endpoint{Name: "Google DNS", Address: "8.8.8.8"}
	cloudflare = domain.Endpoint{Name: "Cloudflare", Address: "1.1.1.1"}
	th         = Thresholds{Degraded: 3, Offline: 5, Recovery: 2}
)

type fakeDiagnoser struct {
	trace  domain.PathTrace
	calls  int
	target string
}

func (f *fakeDiagnoser) Trace(_ context.Context, target string) domain.PathTrace {
	f.calls++
	f.target = target
	tr := f.trace
	tr.Target = target
	return tr
}

func newTestTracker(diag Diagnoser, eps ...domain.Endpoint) (*Tracker, *clock.Mock) {
	mc := clock.NewMock()
	mc.Set(time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC))
	return New(th, eps, "", diag, WithClock(mc)), mc
}

func fail(ep domain.Endpoint) domain.ProbeOutcome {
	return domain.Failed(ep, time.Time{}, "timeout")
}

func ok(ep domain.Endpoint) domain.ProbeOutcome {
	ms := 12.0
	return domain.Succeeded(ep, time.Time{}, &ms)
}

func kinds(t *testing.T, tr *Tracker, mc *clock.Mock, outcomes ...domain.ProbeOutcome) []EventKind {
	t.Helper()
	var out []EventKind
	for _, o := range outcomes {
		mc.Add(time.Second)
		out = append(out, tr.Process(context.Background(), o).Kind)
	}
	return out
}

func TestTracker_StaysOnlineBelowThreshold(t *testing.T) {
	tr, mc := newTestTracker(nil, google)
	got := kinds(t, tr, mc, fail(google), fail(google))
	if diff := cmp.Diff([]EventKind{NoChange, NoChange}, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if tr.Level() != domain.Online {
		t.Fatalf("want ONLINE, got %s", tr.Level())
	}
}

func TestTracker_FullOutageCycle(t *testing.T) {
	diag := &fakeDiagnoser{trace: domain.PathTrace{Hops: []domain.PathHop{
		{Ordinal: 1, Address: "192.168.1.1"},
		{Ordinal: 2, Address: "10.0.0.1"},
		{Ordinal: 3, TimedOut: true},
	}}}
	tr, mc := newTestTracker(diag, google)
	ctx := context.Background()

	want := []EventKind{NoChange, NoChange, Degraded, NoChange}
	got := kinds(t, tr, mc, fail(google), fail(google), fail(google), fail(google))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	mc.Add(time.Second)
	ev := tr.Process(ctx, fail(google))
	if ev.Kind != Offline || ev.Level != domain.Offline || ev.Previous != domain.Degraded {
		t.Fatalf("want Offline event, got %+v", ev)
	}
	if ev.Outage == nil || !ev.Outage.Open() {
		t.Fatalf("want open outage, got %+v", ev.Outage)
	}
	if ev.Outage.FailingHop == nil || *ev.Outage.FailingHop != 2 || ev.Outage.FailingHopAddress != "10.0.0.1" {
		t.Fatalf("want failing hop 2/10.0.0.1, got %+v", ev.Outage)
	}
	if diff := cmp.Diff([]string{"8.8.8.8"}, ev.Outage.AffectedEndpoints); diff != "" {
		t.Fatalf("affected mismatch (-want +got):\n%s", diff)
	}
	if ev.Trace == nil || ev.Trace.Trigger != domain.TriggerStateChange {
		t.Fatalf("want state_change trace, got %+v", ev.Trace)
	}
	if diag.calls != 1 || diag.target != "8.8.8.8" {
		t.Fatalf("want one trace to 8.8.8.8, got %d to %q", diag.calls, diag.target)
	}
	if tr.LastDiagnosis() == nil {
		t.Fatalf("want last diagnosis recorded")
	}

	tr.AttachOutageID(42)

	mc.Add(time.Second)
	if ev := tr.Process(ctx, ok(google)); ev.Kind != NoChange || ev.Level != domain.Offline {
		t.Fatalf("one success must not recover, got %+v", ev)
	}

	mc.Add(time.Second)
	ev = tr.Process(ctx, ok(google))
	if ev.Kind != Recovered || ev.Level != domain.Online {
		t.Fatalf("want Recovered, got %+v", ev)
	}
	if ev.Outage.ID != 42 {
		t.Fatalf("want id 42 carried to close, got %d", ev.Outage.ID)
	}
	if ev.Outage.DurationSecs == nil || *ev.Outage.DurationSecs != 2 {
		t.Fatalf("want 2s duration, got %v", ev.Outage.DurationSecs)
	}
	if tr.CurrentOutage() != nil {
		t.Fatalf("outage slot should be empty after recovery")
	}
}

func TestTracker_FlapKeepsDegraded(t *testing.T) {
	tr, mc := newTestTracker(nil, google)
	kinds(t, tr, mc, fail(google), fail(google), fail(google))
	if tr.Level() != domain.Degraded {
		t.Fatalf("want DEGRADED, got %s", tr.Level())
	}

	got := kinds(t, tr, mc, ok(google), fail(google), ok(google))
	if diff := cmp.Diff([]EventKind{NoChange, NoChange, NoChange}, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if tr.Level() != domain.Degraded {
		t.Fatalf("flapping must keep DEGRADED, got %s", tr.Level())
	}
}

func TestTracker_DegradedRecoversWithoutOutage(t *testing.T) {
	tr, mc := newTestTracker(nil, google)
	kinds(t, tr, mc, fail(google), fail(google), fail(google))

	mc.Add(time.Second)
	ev := tr.Process(context.Background(), ok(google))
	if ev.LevelChanged() {
		t.Fatalf("one success must not recover")
	}
	mc.Add(time.Second)
	ev = tr.Process(context.Background(), ok(google))
	if ev.Kind != NoChange || ev.Level != domain.Online || !ev.LevelChanged() {
		t.Fatalf("want silent return to ONLINE, got %+v", ev)
	}
	if ev.Outage != nil || tr.CurrentOutage() != nil {
		t.Fatalf("no outage expected")
	}
}

func TestTracker_AnyEndpointDownCountsAsFailure(t *testing.T) {
	tr, mc := newTestTracker(nil, google, cloudflare)

	// Cloudflare keeps answering; Google alone drives the aggregate.
	var got []EventKind
	for i := 0; i < 2; i++ {
		got = append(got, kinds(t, tr, mc, fail(google), ok(cloudflare))...)
	}
	want := []EventKind{NoChange, NoChange, Degraded, NoChange}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"8.8.8.8"}, tr.Failing()); diff != "" {
		t.Fatalf("failing mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_FailingInConfigOrder(t *testing.T) {
	tr, mc := newTestTracker(nil, google, cloudflare)
	kinds(t, tr, mc, fail(cloudflare), fail(google))
	if diff := cmp.Diff([]string{"8.8.8.8", "1.1.1.1"}, tr.Failing()); diff != "" {
		t.Fatalf("failing mismatch (-want +got):\n%s", diff)
	}
	states := tr.EndpointStates()
	if len(states) != 2 || states[0].Address != "8.8.8.8" || states[1].ConsecutiveFailures != 1 {
		t.Fatalf("unexpected states %+v", states)
	}
}

func TestTracker_UnknownAddressStillTicks(t *testing.T) {
	tr, mc := newTestTracker(nil, google)
	kinds(t, tr, mc, fail(google))

	stranger := domain.Endpoint{Name: "x", Address: "203.0.113.9"}
	kinds(t, tr, mc, ok(stranger), ok(stranger))
	if tr.Level() != domain.Degraded {
		t.Fatalf("want DEGRADED after three failing ticks, got %s", tr.Level())
	}
	for _, st := range tr.EndpointStates() {
		if st.Address == stranger.Address {
			t.Fatalf("unknown endpoint must not be tracked")
		}
	}
}

func TestTracker_ForceClose(t *testing.T) {
	tr, mc := newTestTracker(&fakeDiagnoser{}, google)
	if got := tr.ForceClose("shutdown"); got != nil {
		t.Fatalf("want nil with no open outage, got %+v", got)
	}

	kinds(t, tr, mc, fail(google), fail(google), fail(google), fail(google), fail(google))
	if tr.CurrentOutage() == nil {
		t.Fatalf("want open outage")
	}

	mc.Add(10 * time.Second)
	got := tr.ForceClose("monitor shutdown during outage")
	if got == nil || got.Open() || got.Notes != "monitor shutdown during outage" {
		t.Fatalf("unexpected force-closed outage %+v", got)
	}
	if *got.DurationSecs != 10 {
		t.Fatalf("want 10s duration, got %v", *got.DurationSecs)
	}
	if tr.CurrentOutage() != nil {
		t.Fatalf("slot should be empty")
	}
	if tr.Level() != domain.Offline {
		t.Fatalf("force close must not change the level, got %s", tr.Level())
	}

	// Recovery after a force close returns to ONLINE without a second close.
	got2 := kinds(t, tr, mc, ok(google), ok(google))
	if diff := cmp.Diff([]EventKind{NoChange, NoChange}, got2); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if tr.Level() != domain.Online {
		t.Fatalf("want ONLINE, got %s", tr.Level())
	}
}

func TestTracker_DiagnosisWithoutInformation(t *testing.T) {
	diag := &fakeDiagnoser{trace: domain.PathTrace{Error: "failed to execute traceroute: not found"}}
	tr, mc := newTestTracker(diag, google)
	kinds(t, tr, mc, fail(google), fail(google), fail(google), fail(google))

	ev := tr.Process(context.Background(), fail(google))
	if ev.Kind != Offline {
		t.Fatalf("want Offline, got %s", ev.Kind)
	}
	if ev.Outage.FailingHop != nil || ev.Outage.FailingHopAddress != "" {
		t.Fatalf("want no failing hop, got %+v", ev.Outage)
	}
}

func TestTracker_PrimaryOverride(t *testing.T) {
	diag := &fakeDiagnoser{}
	mc := clock.NewMock()
	tr := New(Thresholds{Degraded: 1, Offline: 2, Recovery: 1}, []domain.Endpoint{google, cloudflare}, "9.9.9.9", diag, WithClock(mc))
	tr.Process(context.Background(), fail(cloudflare))
	tr.Process(context.Background(), fail(cloudflare))
	if diag.target != "9.9.9.9" {
		t.Fatalf("want diagnosis against 9.9.9.9, got %q", diag.target)
	}
}

func TestTracker_OnlineNeverJumpsToOffline(t *testing.T) {
	mc := clock.NewMock()
	tr := New(Thresholds{Degraded: 1, Offline: 1, Recovery: 1}, []domain.Endpoint{google}, "", nil, WithClock(mc))
	if ev := tr.Process(context.Background(), fail(google)); ev.Kind != Degraded {
		t.Fatalf("want Degraded first, got %s", ev.Kind)
	}
	if ev := tr.Process(context.Background(), fail(google)); ev.Kind != Offline {
		t.Fatalf("want Offline second, got %s", ev.Kind)
	}
}

func TestTracker_Snapshot(t *testing.T) {
	tr, mc := newTestTracker(nil, google, cloudflare)
	kinds(t, tr, mc, fail(google), ok(cloudflare))

	s := tr.Snapshot()
	if s.Level != domain.Online || s.AggregateFailures != 2 || s.Primary != "8.8.8.8" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.Endpoints[0].Last == nil || s.Endpoints[0].Last.Success {
		t.Fatalf("want last failure recorded for google, got %+v", s.Endpoints[0])
	}
}
