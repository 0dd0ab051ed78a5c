package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

type Store struct {
	pool Pool
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
	return &Store{pool: pool, log: log}, nil
}

// NewWithPool wraps an existing pool (or a mock of one).
func NewWithPool(pool Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const Schema = `
CREATE TABLE IF NOT EXISTS store_status_polls (
  store_id  TEXT        NOT NULL,
  timestamp TIMESTAMPTZ NOT NULL,
  status    TEXT        NOT NULL,
  seq       BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_polls_store_time ON store_status_polls (store_id, timestamp);

CREATE TABLE IF NOT EXISTS business_hours (
  store_id    TEXT     NOT NULL,
  day_of_week SMALLINT NOT NULL,
  start_local TIME     NOT NULL,
  end_local   TIME     NOT NULL,
  PRIMARY KEY (store_id, day_of_week)
);

CREATE TABLE IF NOT EXISTS store_timezones (
  store_id     TEXT PRIMARY KEY,
  timezone_str TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
  id           TEXT PRIMARY KEY,
  status       TEXT        NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ NULL,
  error        TEXT        NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS report_rows (
  report_id          TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
  store_id           TEXT NOT NULL,
  uptime_last_hour   INTEGER          NOT NULL,
  uptime_last_day    DOUBLE PRECISION NOT NULL,
  uptime_last_week   DOUBLE PRECISION NOT NULL,
  downtime_last_hour INTEGER          NOT NULL,
  downtime_last_day  DOUBLE PRECISION NOT NULL,
  downtime_last_week DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (report_id, store_id)
);

CREATE TABLE IF NOT EXISTS alerts (
  store_id     TEXT PRIMARY KEY,
  last_down    BOOLEAN     NOT NULL,
  last_sent_at TIMESTAMPTZ NULL
);
`

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// replace truncates table and bulk loads rows in one transaction.
func (s *Store) replace(ctx context.Context, table string, columns []string, rows [][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy %s: %w", table, err)
		}
		s.log.Debug("bulk load", zap.String("table", table), zap.Int64("rows", n))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	return nil
}

// ---- ObservationStore ----

func (s *Store) ReplaceObservations(ctx context.Context, obs []domain.StatusObservation) error {
	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, []any{string(o.StoreID), o.Timestamp.UTC(), string(o.Status), o.Seq})
	}
	return s.replace(ctx, "store_status_polls", []string{"store_id", "timestamp", "status", "seq"}, rows)
}

func (s *Store) ObservationsBetween(ctx context.Context, id domain.StoreID, from, to time.Time) ([]domain.StatusObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, status, seq
		   FROM store_status_polls
		  WHERE store_id = $1 AND timestamp >= $2 AND timestamp <= $3
		  ORDER BY timestamp, seq`,
		string(id), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query polls: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusObservation
	for rows.Next() {
		var (
			ts     time.Time
			status string
			seq    int64
		)
		if err := rows.Scan(&ts, &status, &seq); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		out = append(out, domain.StatusObservation{
			StoreID:   id,
			Timestamp: ts.UTC(),
			Status:    domain.Status(status),
			Seq:       seq,
		})
	}
	return out, rows.Err()
}

func (s *Store) StoreIDs(ctx context.Context) ([]domain.StoreID, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT store_id FROM store_status_polls ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var out []domain.StoreID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan store id: %w", err)
		}
		out = append(out, domain.StoreID(id))
	}
	return out, rows.Err()
}

func (s *Store) MaxObservedAt(ctx context.Context) (time.Time, bool, error) {
	var latest *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT max(timestamp) FROM store_status_polls`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("max timestamp: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// ---- BusinessHoursStore ----

func (s *Store) ReplaceBusinessHours(ctx context.Context, rules []domain.BusinessHoursRule) error {
	rows := make([][]any, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []any{
			string(r.StoreID),
			int16(r.DayOfWeek),
			timeOfDay(r.StartLocal),
			timeOfDay(r.EndLocal),
		})
	}
	return s.replace(ctx, "business_hours", []string{"store_id", "day_of_week", "start_local", "end_local"}, rows)
}

func timeOfDay(t domain.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.SinceMidnight().Microseconds(), Valid: true}
}

func (s *Store) BusinessHours(ctx context.Context, id domain.StoreID) ([]domain.BusinessHoursRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day_of_week, start_local::text, end_local::text
		   FROM business_hours
		  WHERE store_id = $1
		  ORDER BY day_of_week`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("query hours: %w", err)
	}
	defer rows.Close()

	var out []domain.BusinessHoursRule
	for rows.Next() {
		var (
			day        int16
			start, end string
		)
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, fmt.Errorf("scan hours: %w", err)
		}
		st, err := domain.ParseTimeOfDay(start)
		if err != nil {
			return nil, err
		}
		en, err := domain.ParseTimeOfDay(end)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.BusinessHoursRule{StoreID: id, DayOfWeek: int(day), StartLocal: st, EndLocal: en})
	}
	return out, rows.Err()
}

// ---- TimezoneStore ----

func (s *Store) ReplaceTimezones(ctx context.Context, tzs []domain.StoreTimezone) error {
	rows := make([][]any, 0, len(tzs))
	for _, tz := range tzs {
		rows = append(rows, []any{string(tz.StoreID), tz.Timezone})
	}
	return s.replace(ctx, "store_timezones", []string{"store_id", "timezone_str"}, rows)
}

func (s *Store) Timezone(ctx context.Context, id domain.StoreID) (string, bool, error) {
	var tz string
	err := s.pool.QueryRow(ctx, `SELECT timezone_str FROM store_timezones WHERE store_id = $1`, string(id)).Scan(&tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query timezone: %w", err)
	}
	return tz, true, nil
}

// ---- ReportStore ----

func (s *Store) CreateReport(ctx context.Context, r *domain.Report) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = domain.ReportRunning
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, status, created_at)
		 VALUES ($1, $2, $3)`,
		r.ID, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

var reportRowColumns = []string{
	"report_id", "store_id",
	"uptime_last_hour", "uptime_last_day", "uptime_last_week",
	"downtime_last_hour", "downtime_last_day", "downtime_last_week",
}

func (s *Store) SaveRows(ctx context.Context, rows []domain.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	src := make([][]any, 0, len(rows))
	for _, r := range rows {
		src = append(src, []any{
			r.ReportID, string(r.StoreID),
			int32(r.UptimeLastHourMinutes), r.UptimeLastDayHours, r.UptimeLastWeekHours,
			int32(r.DowntimeLastHourMinutes), r.DowntimeLastDayHours, r.DowntimeLastWeekHours,
		})
	}
	if _, err := s.pool.CopyFrom(ctx, pgx.Identifier{"report_rows"}, reportRowColumns, pgx.CopyFromRows(src)); err != nil {
		return fmt.Errorf("copy report rows: %w", err)
	}
	return nil
}

func (s *Store) CompleteReport(ctx context.Context, id string, at time.Time) error {
	return s.finish(ctx, id, domain.ReportComplete, at, "")
}

func (s *Store) FailReport(ctx context.Context, id string, at time.Time, reason string) error {
	return s.finish(ctx, id, domain.ReportError, at, reason)
}

func (s *Store) finish(ctx context.Context, id string, st domain.ReportStatus, at time.Time, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $2, completed_at = $3, error = $4 WHERE id = $1`,
		id, string(st), at.UTC(), reason,
	)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (*domain.Report, error) {
	var (
		r      domain.Report
		status string
	)
	if err := row.Scan(&r.ID, &status, &r.CreatedAt, &r.CompletedAt, &r.Error); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	r.Status = domain.ReportStatus(status)
	return &r, nil
}

func (s *Store) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	return scanReport(s.pool.QueryRow(ctx,
		`SELECT id, status, created_at, completed_at, error FROM reports WHERE id = $1`, id))
}

func (s *Store) LatestCompleted(ctx context.Context) (*domain.Report, error) {
	return scanReport(s.pool.QueryRow(ctx,
		`SELECT id, status, created_at, completed_at, error
		   FROM reports
		  WHERE status = 'Complete' AND completed_at IS NOT NULL
		  ORDER BY completed_at DESC
		  LIMIT 1`))
}

func (s *Store) ReportRows(ctx context.Context, id string) ([]domain.ReportRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT store_id,
		        uptime_last_hour, uptime_last_day, uptime_last_week,
		        downtime_last_hour, downtime_last_day, downtime_last_week
		   FROM report_rows
		  WHERE report_id = $1
		  ORDER BY store_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query report rows: %w", err)
	}
	defer rows.Close()

	var out []domain.ReportRow
	for rows.Next() {
		var (
			r       = domain.ReportRow{ReportID: id}
			storeID string
			upH     int32
			downH   int32
		)
		if err := rows.Scan(&storeID,
			&upH, &r.UptimeLastDayHours, &r.UptimeLastWeekHours,
			&downH, &r.DowntimeLastDayHours, &r.DowntimeLastWeekHours); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r.StoreID = domain.StoreID(storeID)
		r.UptimeLastHourMinutes, r.DowntimeLastHourMinutes = int(upH), int(downH)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- AlertStore ----

func (s *Store) Get(ctx context.Context, id domain.StoreID) (*repo.AlertRecord, error) {
	const q = `SELECT last_down, last_sent_at FROM alerts WHERE store_id=$1`
	r := repo.AlertRecord{StoreID: id}
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(&r.LastDown, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) Set(ctx context.Context, id domain.StoreID, down bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alerts (store_id, last_down, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (store_id)
		DO UPDATE SET last_down=EXCLUDED.last_down, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	_, err := s.pool.Exec(ctx, q, string(id), down, ts)
	return err
}
