package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/repo"
)

// Store keeps everything in process memory. Ids are assigned from one
// sequence per table, starting at 1.
type Store struct {
	mu      sync.RWMutex
	outages map[int64]*domain.Outage
	pings   []domain.ProbeOutcome
	traces  []*domain.PathTrace
	alerts  map[string]repo.AlertRecord

	nextOutage int64
	nextTrace  int64
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		outages: make(map[int64]*domain.Outage),
		pings:   make([]domain.ProbeOutcome, 0, 128),
		alerts:  make(map[string]repo.AlertRecord),
	}
}

func (m *Store) Close() error { return nil }

// ---- OutageStore ----

func (m *Store) InsertOutage(ctx context.Context, o *domain.Outage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOutage++
	o.ID = m.nextOutage
	m.outages[o.ID] = o.Clone()
	return o.ID, nil
}

func (m *Store) UpdateOutage(ctx context.Context, o *domain.Outage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outages[o.ID]; !ok {
		return repo.ErrNotFound
	}
	m.outages[o.ID] = o.Clone()
	return nil
}

func (m *Store) OngoingOutage(ctx context.Context) (*domain.Outage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cur *domain.Outage
	for _, o := range m.outages {
		if !o.Open() {
			continue
		}
		if cur == nil || o.StartTime.After(cur.StartTime) {
			cur = o
		}
	}
	return cur.Clone(), nil
}

func (m *Store) Outages(ctx context.Context, since, until time.Time) ([]domain.Outage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Outage, 0)
	for _, o := range m.outages {
		if o.StartTime.Before(since) || o.StartTime.After(until) {
			continue
		}
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

func (m *Store) Outage(ctx context.Context, id int64) (*domain.Outage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.outages[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return o.Clone(), nil
}

// ---- PingStore ----

func (m *Store) AppendPing(ctx context.Context, o domain.ProbeOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings = append(m.pings, o)
	return nil
}

func (m *Store) RecentPings(ctx context.Context, address string, limit int) ([]domain.ProbeOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ProbeOutcome
	for i := len(m.pings) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if address != "" && m.pings[i].Address != address {
			continue
		}
		out = append(out, m.pings[i])
	}
	return out, nil
}

// ---- TraceStore ----

func (m *Store) InsertTrace(ctx context.Context, tr *domain.PathTrace) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTrace++
	tr.ID = m.nextTrace
	cp := *tr
	cp.Hops = append([]domain.PathHop(nil), tr.Hops...)
	m.traces = append(m.traces, &cp)
	return tr.ID, nil
}

func (m *Store) TracesForOutage(ctx context.Context, outageID int64) ([]domain.PathTrace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PathTrace
	for _, tr := range m.traces {
		if tr.OutageID != nil && *tr.OutageID == outageID {
			out = append(out, *tr)
		}
	}
	return out, nil
}

func (m *Store) RecentTraces(ctx context.Context, limit int) ([]domain.PathTrace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PathTrace
	for i := len(m.traces) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, *m.traces[i])
	}
	return out, nil
}

// ---- AlertStore ----

func (m *Store) AlertState(ctx context.Context, key string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[key]
	if !ok {
		return nil, nil
	}
	if r.LastSentAt != nil {
		ts := *r.LastSentAt
		r.LastSentAt = &ts
	}
	return &r, nil
}

func (m *Store) SaveAlertState(ctx context.Context, r repo.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.LastSentAt != nil {
		ts := *r.LastSentAt
		r.LastSentAt = &ts
	}
	m.alerts[r.Key] = r
	return nil
}

// ---- Pruner ----

func (m *Store) Prune(ctx context.Context, before time.Time) (repo.PruneCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c repo.PruneCounts

	keptPings := m.pings[:0]
	for _, p := range m.pings {
		if p.Timestamp.Before(before) {
			c.Pings++
			continue
		}
		keptPings = append(keptPings, p)
	}
	m.pings = keptPings

	keptTraces := m.traces[:0]
	for _, tr := range m.traces {
		if tr.Timestamp.Before(before) {
			c.Traces++
			continue
		}
		keptTraces = append(keptTraces, tr)
	}
	m.traces = keptTraces

	for id, o := range m.outages {
		if o.EndTime != nil && o.EndTime.Before(before) {
			delete(m.outages, id)
			c.Outages++
		}
	}
	return c, nil
}
