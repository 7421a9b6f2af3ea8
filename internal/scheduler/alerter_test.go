package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/repo/memory"
	"github.com/hamed0406/netvigil/internal/tracker"
)

// ---- shared helpers ----

type memNotifier struct {
	n      int
	titles []string
	texts  []string
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.n++
	m.titles = append(m.titles, title)
	m.texts = append(m.texts, text)
	return nil
}

func offlineEvent(start time.Time) tracker.Event {
	hop := 2
	o := domain.NewOutage([]string{"8.8.8.8"}, start)
	o.FailingHop = &hop
	o.FailingHopAddress = "10.0.0.1"
	return tracker.Event{Kind: tracker.Offline, Level: domain.Offline, Previous: domain.Degraded, Outage: o}
}

func recoveredEvent(start time.Time, d time.Duration) tracker.Event {
	o := domain.NewOutage([]string{"8.8.8.8"}, start)
	o.Close(start.Add(d))
	return tracker.Event{Kind: tracker.Recovered, Level: domain.Online, Previous: domain.Offline, Outage: o}
}

func newTestAlerter(store repo.AlertStore, nt *memNotifier, cfg AlerterConfig) (*Alerter, *clock.Mock) {
	al := NewAlerter(store, nt, cfg, zap.NewNop())
	mc := clock.NewMock()
	mc.Set(time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC))
	al.clock = mc
	return al, mc
}

// ---- tests ----

func TestAlerter_SendsOnOffline_RespectsCooldown(t *testing.T) {
	store := memory.New()
	nt := &memNotifier{}
	al, mc := newTestAlerter(store, nt, AlerterConfig{
		AlertOnRecovery: true,
		Cooldown:        1 * time.Minute,
	})
	ctx := context.Background()

	// first outage -> should alert
	if err := al.Handle(ctx, offlineEvent(mc.Now())); err != nil {
		t.Fatal(err)
	}
	if nt.n != 1 {
		t.Fatalf("want 1 alert, got %d", nt.n)
	}
	if !strings.Contains(nt.texts[0], "Failing hop: 2 10.0.0.1 (ISP Modem)") {
		t.Fatalf("unexpected text %q", nt.texts[0])
	}

	// recovery bypasses cooldown
	mc.Add(10 * time.Second)
	if err := al.Handle(ctx, recoveredEvent(mc.Now(), 5*time.Second)); err != nil {
		t.Fatal(err)
	}
	if nt.n != 2 {
		t.Fatalf("want recovery alert, got %d", nt.n)
	}

	// second outage within cooldown -> no new alert
	mc.Add(10 * time.Second)
	if err := al.Handle(ctx, offlineEvent(mc.Now())); err != nil {
		t.Fatal(err)
	}
	if nt.n != 2 {
		t.Fatalf("want cooldown to suppress, got %d", nt.n)
	}

	// after cooldown -> alert again
	mc.Add(time.Minute)
	if err := al.Handle(ctx, offlineEvent(mc.Now())); err != nil {
		t.Fatal(err)
	}
	if nt.n != 3 {
		t.Fatalf("want alert after cooldown, got %d", nt.n)
	}
	rec, _ := store.AlertState(ctx, keyOffline)
	if rec == nil || rec.Level != domain.Offline || rec.Sent != 3 {
		t.Fatalf("unexpected alert state %+v", rec)
	}
}

func TestAlerter_NoRecoveryIfDisabled(t *testing.T) {
	store := memory.New()
	nt := &memNotifier{}
	al, mc := newTestAlerter(store, nt, AlerterConfig{})
	ctx := context.Background()

	if err := al.Handle(ctx, recoveredEvent(mc.Now(), time.Minute)); err != nil {
		t.Fatal(err)
	}
	if nt.n != 0 {
		t.Fatalf("unexpected alert: %d", nt.n)
	}
	rec, _ := store.AlertState(ctx, keyOffline)
	if rec == nil || rec.Level != domain.Online || rec.LastSentAt != nil || rec.Sent != 0 {
		t.Fatalf("want state recorded without send time, got %+v", rec)
	}
}

func TestAlerter_DegradedOptIn(t *testing.T) {
	nt := &memNotifier{}
	ev := tracker.Event{Kind: tracker.Degraded, Level: domain.Degraded, Failing: []string{"8.8.8.8", "1.1.1.1"}}

	al, _ := newTestAlerter(memory.New(), nt, AlerterConfig{})
	_ = al.Handle(context.Background(), ev)
	if nt.n != 0 {
		t.Fatalf("degraded alerts are off by default, got %d", nt.n)
	}

	al, _ = newTestAlerter(memory.New(), nt, AlerterConfig{AlertOnDegraded: true})
	_ = al.Handle(context.Background(), ev)
	if nt.n != 1 || nt.texts[0] != "Failing: 8.8.8.8, 1.1.1.1" {
		t.Fatalf("want one degraded alert, got %d %v", nt.n, nt.texts)
	}
}

func TestAlerter_IgnoresNoChange(t *testing.T) {
	nt := &memNotifier{}
	al, _ := newTestAlerter(memory.New(), nt, AlerterConfig{AlertOnRecovery: true, AlertOnDegraded: true})
	_ = al.Handle(context.Background(), tracker.Event{Kind: tracker.NoChange, Level: domain.Online, Previous: domain.Degraded})
	if nt.n != 0 {
		t.Fatalf("want no alert, got %d", nt.n)
	}
}
