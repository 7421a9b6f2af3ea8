package repo

import (
	"context"
	"time"

	"github.com/hamed0406/netvigil/internal/domain"
)

// AlertRecord is the notification history for one alert key. Level is the
// connectivity level the key last moved to; LastSentAt is nil when that move
// was recorded without a notification, which also lifts the cooldown.
type AlertRecord struct {
	Key        string
	Level      domain.Level
	LastSentAt *time.Time
	Sent       int
}

// CooledDown reports whether a new notification may go out at now.
func (r *AlertRecord) CooledDown(now time.Time, cooldown time.Duration) bool {
	if r == nil || r.LastSentAt == nil {
		return true
	}
	return now.Sub(*r.LastSentAt) >= cooldown
}

type AlertStore interface {
	// AlertState returns nil, nil when key has no record yet.
	AlertState(ctx context.Context, key string) (*AlertRecord, error)
	// SaveAlertState upserts r by key.
	SaveAlertState(ctx context.Context, r AlertRecord) error
}
