package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/netvigil/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Ports (interfaces); swap in any DB adapter later.
type OutageStore interface {
	// InsertOutage stores o and returns its id. o.ID is set as well.
	InsertOutage(ctx context.Context, o *domain.Outage) (int64, error)
	UpdateOutage(ctx context.Context, o *domain.Outage) error
	// OngoingOutage returns the most recent open outage, or nil, nil.
	OngoingOutage(ctx context.Context) (*domain.Outage, error)
	// Outages returns outages that started within [since, until], newest first.
	Outages(ctx context.Context, since, until time.Time) ([]domain.Outage, error)
	Outage(ctx context.Context, id int64) (*domain.Outage, error)
}

type PingStore interface {
	AppendPing(ctx context.Context, o domain.ProbeOutcome) error
	// RecentPings returns up to limit outcomes, newest first. An empty
	// address matches every endpoint.
	RecentPings(ctx context.Context, address string, limit int) ([]domain.ProbeOutcome, error)
}

type TraceStore interface {
	InsertTrace(ctx context.Context, tr *domain.PathTrace) (int64, error)
	TracesForOutage(ctx context.Context, outageID int64) ([]domain.PathTrace, error)
	RecentTraces(ctx context.Context, limit int) ([]domain.PathTrace, error)
}

// PruneCounts reports how many rows a retention pass removed.
type PruneCounts struct {
	Pings   int64 `json:"pings"`
	Traces  int64 `json:"traces"`
	Outages int64 `json:"outages"`
}

func (c PruneCounts) Total() int64 { return c.Pings + c.Traces + c.Outages }

// Pruner drops pings and traces recorded before the cutoff and outages that
// ended before it. Open outages are never pruned.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (PruneCounts, error)
}

// Store is everything the daemon needs from persistence.
type Store interface {
	OutageStore
	PingStore
	TraceStore
	AlertStore
	Pruner
	Close() error
}
