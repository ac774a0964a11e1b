package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/logger"
)

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS options;

	CREATE TABLE IF NOT EXISTS options.snapshots (
		symbol        TEXT        NOT NULL,
		snapshot_date DATE        NOT NULL,
		payload       JSONB       NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (symbol, snapshot_date)
	);

	CREATE TABLE IF NOT EXISTS options.unusual_activity (
		symbol        TEXT        NOT NULL,
		snapshot_date DATE        NOT NULL,
		records       JSONB       NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (symbol, snapshot_date)
	);
`

// PostgresStore keeps snapshots as JSONB rows keyed by (symbol, snapshot_date)
// ⭐ SSOT: options.snapshots / options.unusual_activity 저장/조회
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresStore creates a new postgres-backed store
func NewPostgresStore(pool *pgxpool.Pool, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: log.Module("snapshot_postgres"),
	}
}

// EnsureSchema creates the options schema and tables if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

// GetSnapshot retrieves a snapshot by (symbol, date)
func (s *PostgresStore) GetSnapshot(ctx context.Context, symbol string, date time.Time) (*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	day := contracts.Day(date)

	query := `
		SELECT payload
		FROM options.snapshots
		WHERE symbol = $1 AND snapshot_date = $2
	`

	var payload []byte
	err = s.pool.QueryRow(ctx, query, sym, day).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", contracts.ErrSnapshotNotFound, sym, day.Format(contracts.DateLayout))
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	return decodeSnapshot(payload, sym, day)
}

// LatestSnapshot returns the newest row that decodes and validates
func (s *PostgresStore) LatestSnapshot(ctx context.Context, symbol string) (*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT snapshot_date, payload
		FROM options.snapshots
		WHERE symbol = $1
		ORDER BY snapshot_date DESC
		LIMIT 10
	`

	rows, err := s.pool.Query(ctx, query, sym)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date time.Time
		var payload []byte
		if err := rows.Scan(&date, &payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}

		snap, err := decodeSnapshot(payload, sym, date)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"symbol": sym,
				"date":   date.Format(contracts.DateLayout),
				"error":  err.Error(),
			}).Warn("Skipping unusable snapshot")
			continue
		}
		return snap, nil
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return nil, fmt.Errorf("%w: no snapshots for %s", contracts.ErrSnapshotNotFound, sym)
}

// Range returns snapshots in [start, end], oldest first
func (s *PostgresStore) Range(ctx context.Context, symbol string, start, end time.Time) ([]*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT snapshot_date, payload
		FROM options.snapshots
		WHERE symbol = $1 AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date ASC
	`

	rows, err := s.pool.Query(ctx, query, sym, contracts.Day(start), contracts.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query snapshot range: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Snapshot
	for rows.Next() {
		var date time.Time
		var payload []byte
		if err := rows.Scan(&date, &payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}

		snap, err := decodeSnapshot(payload, sym, date)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"symbol": sym,
				"date":   date.Format(contracts.DateLayout),
				"error":  err.Error(),
			}).Warn("Skipping snapshot in range")
			continue
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot range: %w", err)
	}

	return out, nil
}

// UnusualActivity returns the unusual-activity list for (symbol, date)
func (s *PostgresStore) UnusualActivity(ctx context.Context, symbol string, date time.Time) ([]contracts.UnusualActivityRecord, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT records
		FROM options.unusual_activity
		WHERE symbol = $1 AND snapshot_date = $2
	`

	var payload []byte
	err = s.pool.QueryRow(ctx, query, sym, contracts.Day(date)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []contracts.UnusualActivityRecord{}, nil
		}
		return nil, fmt.Errorf("query unusual activity: %w", err)
	}

	var records []contracts.UnusualActivityRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: decode unusual activity %s: %v", contracts.ErrStoreCorrupt, sym, err)
	}
	if err := ValidateUnusual(records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []contracts.UnusualActivityRecord{}
	}
	return records, nil
}

// AvailableDates lists archived dates, newest first
func (s *PostgresStore) AvailableDates(ctx context.Context, symbol string) ([]time.Time, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT snapshot_date
		FROM options.snapshots
		WHERE symbol = $1
		ORDER BY snapshot_date DESC
	`

	rows, err := s.pool.Query(ctx, query, sym)
	if err != nil {
		return nil, fmt.Errorf("query available dates: %w", err)
	}
	defer rows.Close()

	dates := []time.Time{}
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, contracts.Day(date))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates: %w", err)
	}

	return dates, nil
}

// SaveSnapshot inserts snapshot and unusual rows in one transaction; existing keys are never overwritten
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *contracts.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	if err := ValidateUnusual(snap.Unusual); err != nil {
		return err
	}
	sym, err := NormalizeSymbol(snap.Symbol)
	if err != nil {
		return err
	}
	day := contracts.Day(snap.Date)

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	unusual := snap.Unusual
	if unusual == nil {
		unusual = []contracts.UnusualActivityRecord{}
	}
	records, err := json.Marshal(unusual)
	if err != nil {
		return fmt.Errorf("encode unusual activity: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO options.snapshots (symbol, snapshot_date, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, snapshot_date) DO NOTHING
	`, sym, day, payload)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", contracts.ErrSnapshotExists, sym, day.Format(contracts.DateLayout))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO options.unusual_activity (symbol, snapshot_date, records)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, snapshot_date) DO NOTHING
	`, sym, day, records)
	if err != nil {
		return fmt.Errorf("insert unusual activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol":  sym,
		"date":    day.Format(contracts.DateLayout),
		"chains":  len(snap.Chains),
		"unusual": len(snap.Unusual),
	}).Info("Snapshot saved")

	return nil
}

func decodeSnapshot(payload []byte, symbol string, date time.Time) (*contracts.Snapshot, error) {
	var snap contracts.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode %s %s: %v", contracts.ErrStoreCorrupt, symbol, date.Format(contracts.DateLayout), err)
	}
	if err := Validate(&snap); err != nil {
		return nil, err
	}
	if err := checkKey(&snap, symbol, date); err != nil {
		return nil, err
	}
	return &snap, nil
}
