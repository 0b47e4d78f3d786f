package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/oiscan/oiscan/internal/store"
)

// symbolRepo implements store.SymbolStore; the universe is one text[] row
// replaced wholesale on every save.
type symbolRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSymbolStore creates a Postgres-backed symbol universe store.
func NewSymbolStore(db *sqlx.DB) store.SymbolStore {
	return &symbolRepo{db: db, timeout: defaultTimeout}
}

func (r *symbolRepo) Save(ctx context.Context, symbols []string) error {
	normalized := store.NormalizeSymbols(symbols)
	if len(normalized) == 0 {
		return store.ErrEmptyUniverse
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO symbol_universe (id, symbols, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			symbols = EXCLUDED.symbols,
			updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, pq.StringArray(normalized)); err != nil {
		return fmt.Errorf("failed to save symbol universe: %w", err)
	}
	return nil
}

func (r *symbolRepo) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var symbols pq.StringArray
	err := r.db.GetContext(ctx, &symbols, `SELECT symbols FROM symbol_universe WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load symbol universe: %w", err)
	}
	return []string(symbols), nil
}
