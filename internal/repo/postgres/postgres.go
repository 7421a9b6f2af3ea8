package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- OutageStore ----

const outageCols = `id, start_time, end_time, duration_secs, affected_endpoints, failing_hop, failing_hop_address, notes`

func (s *Store) InsertOutage(ctx context.Context, o *domain.Outage) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO outages (start_time, end_time, duration_secs, affected_endpoints, failing_hop, failing_hop_address, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		o.StartTime, o.EndTime, o.DurationSecs, nonNil(o.AffectedEndpoints),
		hopParam(o.FailingHop), nullText(o.FailingHopAddress), nullText(o.Notes),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert outage: %w", err)
	}
	o.ID = id
	return id, nil
}

func (s *Store) UpdateOutage(ctx context.Context, o *domain.Outage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outages
		    SET end_time = $2, duration_secs = $3, failing_hop = $4, failing_hop_address = $5, notes = $6
		  WHERE id = $1`,
		o.ID, o.EndTime, o.DurationSecs, hopParam(o.FailingHop), nullText(o.FailingHopAddress), nullText(o.Notes),
	)
	if err != nil {
		return fmt.Errorf("update outage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) OngoingOutage(ctx context.Context) (*domain.Outage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+outageCols+`
		   FROM outages
		  WHERE end_time IS NULL
		  ORDER BY start_time DESC
		  LIMIT 1`)
	o, err := scanOutage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ongoing outage: %w", err)
	}
	return o, nil
}

func (s *Store) Outages(ctx context.Context, since, until time.Time) ([]domain.Outage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+outageCols+`
		   FROM outages
		  WHERE start_time >= $1 AND start_time <= $2
		  ORDER BY start_time DESC, id DESC`, since, until)
	if err != nil {
		return nil, fmt.Errorf("list outages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Outage, 0)
	for rows.Next() {
		o, err := scanOutage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outage: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Store) Outage(ctx context.Context, id int64) (*domain.Outage, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+outageCols+` FROM outages WHERE id = $1`, id)
	o, err := scanOutage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outage: %w", err)
	}
	return o, nil
}

func scanOutage(row pgx.Row) (*domain.Outage, error) {
	var (
		o     domain.Outage
		hop   *int32
		addr  *string
		notes *string
	)
	if err := row.Scan(&o.ID, &o.StartTime, &o.EndTime, &o.DurationSecs, &o.AffectedEndpoints, &hop, &addr, &notes); err != nil {
		return nil, err
	}
	if hop != nil {
		h := int(*hop)
		o.FailingHop = &h
	}
	if addr != nil {
		o.FailingHopAddress = *addr
	}
	if notes != nil {
		o.Notes = *notes
	}
	return &o, nil
}

// ---- PingStore ----

func (s *Store) AppendPing(ctx context.Context, p domain.ProbeOutcome) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pings (ts, address, name, success, latency_ms, failure_reason)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.Timestamp, p.Address, p.Name, p.Success, p.LatencyMS, nullText(p.FailureReason))
	if err != nil {
		return fmt.Errorf("insert ping: %w", err)
	}
	return nil
}

func (s *Store) RecentPings(ctx context.Context, address string, limit int) ([]domain.ProbeOutcome, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT ts, address, name, success, latency_ms, failure_reason
		   FROM pings
		  WHERE $1 = '' OR address = $1
		  ORDER BY ts DESC, id DESC
		  LIMIT $2`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list pings: %w", err)
	}
	defer rows.Close()

	var out []domain.ProbeOutcome
	for rows.Next() {
		var (
			p      domain.ProbeOutcome
			reason *string
		)
		if err := rows.Scan(&p.Timestamp, &p.Address, &p.Name, &p.Success, &p.LatencyMS, &reason); err != nil {
			return nil, fmt.Errorf("scan ping: %w", err)
		}
		if reason != nil {
			p.FailureReason = *reason
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- TraceStore ----

const traceCols = `id, outage_id, target, ts, hops, reached_target, trigger_kind, error`

func (s *Store) InsertTrace(ctx context.Context, tr *domain.PathTrace) (int64, error) {
	hops, err := json.Marshal(nonNilHops(tr.Hops))
	if err != nil {
		return 0, fmt.Errorf("encode hops: %w", err)
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO traces (outage_id, target, ts, hops, reached_target, trigger_kind, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		tr.OutageID, tr.Target, tr.Timestamp, string(hops), tr.ReachedTarget, string(tr.Trigger), nullText(tr.Error),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trace: %w", err)
	}
	tr.ID = id
	return id, nil
}

func (s *Store) TracesForOutage(ctx context.Context, outageID int64) ([]domain.PathTrace, error) {
	return s.queryTraces(ctx,
		`SELECT `+traceCols+` FROM traces WHERE outage_id = $1 ORDER BY ts ASC, id ASC`, outageID)
}

func (s *Store) RecentTraces(ctx context.Context, limit int) ([]domain.PathTrace, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryTraces(ctx,
		`SELECT `+traceCols+` FROM traces ORDER BY ts DESC, id DESC LIMIT $1`, limit)
}

func (s *Store) queryTraces(ctx context.Context, q string, args ...any) ([]domain.PathTrace, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []domain.PathTrace
	for rows.Next() {
		var (
			tr      domain.PathTrace
			hops    []byte
			trigger string
			msg     *string
		)
		if err := rows.Scan(&tr.ID, &tr.OutageID, &tr.Target, &tr.Timestamp, &hops, &tr.ReachedTarget, &trigger, &msg); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		if err := json.Unmarshal(hops, &tr.Hops); err != nil {
			return nil, fmt.Errorf("decode hops for trace %d: %w", tr.ID, err)
		}
		tr.Trigger = domain.TraceTrigger(trigger)
		if msg != nil {
			tr.Error = *msg
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ---- Pruner ----

func (s *Store) Prune(ctx context.Context, before time.Time) (repo.PruneCounts, error) {
	var c repo.PruneCounts
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM pings WHERE ts < $1`, before)
		if err != nil {
			return fmt.Errorf("prune pings: %w", err)
		}
		c.Pings = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM traces WHERE ts < $1`, before)
		if err != nil {
			return fmt.Errorf("prune traces: %w", err)
		}
		c.Traces = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM outages WHERE end_time IS NOT NULL AND end_time < $1`, before)
		if err != nil {
			return fmt.Errorf("prune outages: %w", err)
		}
		c.Outages = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return repo.PruneCounts{}, err
	}
	s.log.Info("store_pruned",
		zap.Time("before", before),
		zap.Int64("pings", c.Pings),
		zap.Int64("traces", c.Traces),
		zap.Int64("outages", c.Outages),
	)
	return c, nil
}

// ---- helpers ----

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func hopParam(h *int) *int32 {
	if h == nil {
		return nil
	}
	v := int32(*h)
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilHops(h []domain.PathHop) []domain.PathHop {
	if h == nil {
		return []domain.PathHop{}
	}
	return h
}
