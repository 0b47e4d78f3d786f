package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/store"
)

// credentialRepo implements store.CredentialStore over a single-row table.
type credentialRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCredentialStore creates a Postgres-backed credential store.
func NewCredentialStore(db *sqlx.DB) store.CredentialStore {
	return &credentialRepo{db: db, timeout: defaultTimeout}
}

type credentialRow struct {
	ClientID     string `db:"client_id"`
	Secret       string `db:"secret"`
	RedirectURL  string `db:"redirect_url"`
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	Expiry       int64  `db:"expiry"`
}

func (r *credentialRepo) Save(ctx context.Context, creds domain.Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO broker_credentials
			(id, client_id, secret, redirect_url, access_token, refresh_token, expiry, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			secret = EXCLUDED.secret,
			redirect_url = EXCLUDED.redirect_url,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry,
			updated_at = now()`

	_, err := r.db.ExecContext(ctx, query,
		creds.ClientID, creds.Secret, creds.RedirectURL,
		creds.AccessToken, creds.RefreshToken, int64(creds.Expiry))
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (r *credentialRepo) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM broker_credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (r *credentialRepo) Current(ctx context.Context) (*domain.Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row credentialRow
	err := r.db.GetContext(ctx, &row, `
		SELECT client_id, secret, redirect_url, access_token, refresh_token, expiry
		FROM broker_credentials WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	return &domain.Credentials{
		ClientID:     row.ClientID,
		Secret:       row.Secret,
		RedirectURL:  row.RedirectURL,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		Expiry:       domain.Time(row.Expiry),
	}, nil
}
