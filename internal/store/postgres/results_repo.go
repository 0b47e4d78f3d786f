package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/store"
)

// resultRepo implements store.ResultStore. Snapshot and scan time live in the
// same row, so a single upsert replaces both atomically and readers can never
// pair an old snapshot with a new timestamp.
type resultRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewResultStore creates a Postgres-backed result store.
func NewResultStore(db *sqlx.DB) store.ResultStore {
	return &resultRepo{db: db, timeout: defaultTimeout}
}

func (r *resultRepo) Commit(ctx context.Context, res *domain.Results, at domain.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snapshot, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal results snapshot: %w", err)
	}

	query := `
		INSERT INTO scan_results (id, snapshot, scanned_at, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			scanned_at = EXCLUDED.scanned_at,
			updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, snapshot, int64(at)); err != nil {
		return fmt.Errorf("failed to commit results snapshot: %w", err)
	}
	return nil
}

func (r *resultRepo) Latest(ctx context.Context) (*domain.Results, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var snapshot []byte
	err := r.db.GetContext(ctx, &snapshot, `SELECT snapshot FROM scan_results WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load results snapshot: %w", err)
	}

	var res domain.Results
	if err := json.Unmarshal(snapshot, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results snapshot: %w", err)
	}
	return &res, nil
}

func (r *resultRepo) LastScanTime(ctx context.Context) (domain.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var scannedAt int64
	err := r.db.GetContext(ctx, &scannedAt, `SELECT scanned_at FROM scan_results WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load last scan time: %w", err)
	}
	return domain.Time(scannedAt), true, nil
}
