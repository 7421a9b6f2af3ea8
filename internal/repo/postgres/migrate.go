package postgres

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS outages (
  id                  BIGSERIAL PRIMARY KEY,
  start_time          TIMESTAMPTZ NOT NULL,
  end_time            TIMESTAMPTZ NULL,
  duration_secs       DOUBLE PRECISION NULL,
  affected_endpoints  TEXT[] NOT NULL DEFAULT '{}',
  failing_hop         INTEGER NULL,
  failing_hop_address TEXT NULL,
  notes               TEXT NULL
);

CREATE INDEX IF NOT EXISTS idx_outages_start ON outages (start_time DESC);
CREATE INDEX IF NOT EXISTS idx_outages_open  ON outages (start_time DESC) WHERE end_time IS NULL;

CREATE TABLE IF NOT EXISTS pings (
  id             BIGSERIAL PRIMARY KEY,
  ts             TIMESTAMPTZ NOT NULL,
  address        TEXT NOT NULL,
  name           TEXT NOT NULL,
  success        BOOLEAN NOT NULL,
  latency_ms     DOUBLE PRECISION NULL,
  failure_reason TEXT NULL
);

CREATE INDEX IF NOT EXISTS idx_pings_ts ON pings (ts DESC);
CREATE INDEX IF NOT EXISTS idx_pings_address_ts ON pings (address, ts DESC);

CREATE TABLE IF NOT EXISTS traces (
  id             BIGSERIAL PRIMARY KEY,
  outage_id      BIGINT NULL REFERENCES outages(id) ON DELETE SET NULL,
  target         TEXT NOT NULL,
  ts             TIMESTAMPTZ NOT NULL,
  hops           JSONB NOT NULL,
  reached_target BOOLEAN NOT NULL,
  trigger_kind   TEXT NOT NULL,
  error          TEXT NULL
);

CREATE INDEX IF NOT EXISTS idx_traces_outage ON traces (outage_id);
CREATE INDEX IF NOT EXISTS idx_traces_ts     ON traces (ts DESC);

CREATE TABLE IF NOT EXISTS alerts (
  alert_key    TEXT PRIMARY KEY,
  level        TEXT NOT NULL,
  last_sent_at TIMESTAMPTZ NULL,
  sent_count   INTEGER NOT NULL DEFAULT 0
);
`

// Migrate creates the tables if they do not exist yet. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
