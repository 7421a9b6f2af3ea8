package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/netvigil/internal/repo"
)

// ---- AlertStore ----

func (s *Store) AlertState(ctx context.Context, key string) (*repo.AlertRecord, error) {
	var (
		level    string
		lastSent *time.Time
		sent     int32
	)
	err := s.pool.QueryRow(ctx,
		`SELECT level, last_sent_at, sent_count FROM alerts WHERE alert_key = $1`, key,
	).Scan(&level, &lastSent, &sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("alert state %s: %w", key, err)
	}
	r := &repo.AlertRecord{Key: key, LastSentAt: lastSent, Sent: int(sent)}
	_ = r.Level.UnmarshalText([]byte(level))
	return r, nil
}

func (s *Store) SaveAlertState(ctx context.Context, r repo.AlertRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (alert_key, level, last_sent_at, sent_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (alert_key) DO UPDATE
		 SET level = EXCLUDED.level, last_sent_at = EXCLUDED.last_sent_at, sent_count = EXCLUDED.sent_count`,
		r.Key, r.Level.String(), r.LastSentAt, int32(r.Sent))
	if err != nil {
		return fmt.Errorf("save alert state %s: %w", r.Key, err)
	}
	return nil
}
