// Package store defines the persistence interfaces for broker credentials,
// the symbol universe and scan result snapshots, plus the derivation and
// normalization rules shared by every implementation.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oiscan/oiscan/internal/domain"
)

// ErrEmptyUniverse is returned when a saved symbol list normalizes down to
// nothing.
var ErrEmptyUniverse = errors.New("symbol universe is empty after normalization")

// CredentialStore owns the single broker credential record. Save overwrites
// every field; Current returns nil when nothing is saved.
type CredentialStore interface {
	Save(ctx context.Context, creds domain.Credentials) error
	Clear(ctx context.Context) error
	Current(ctx context.Context) (*domain.Credentials, error)
}

// SymbolStore owns the user-curated symbol universe. Save replaces the list
// wholesale after normalization; List returns nil when never saved, which is
// distinct from empty (Save forbids empty).
type SymbolStore interface {
	Save(ctx context.Context, symbols []string) error
	List(ctx context.Context) ([]string, error)
}

// ResultStore holds the single current scan snapshot and the completion time
// of the last scan, replaced together atomically by Commit. Readers never see
// a mix of an old snapshot with a new timestamp.
type ResultStore interface {
	Latest(ctx context.Context) (*domain.Results, error)
	LastScanTime(ctx context.Context) (domain.Time, bool, error)
	Commit(ctx context.Context, res *domain.Results, at domain.Time) error
}

// ConnectionStatus derives the connection state from the stored credentials.
// The state is computed on every query, never stored, so an expiry crossing
// wall-clock time is picked up lazily.
func ConnectionStatus(ctx context.Context, cs CredentialStore, now time.Time) (domain.ConnectionStatus, error) {
	creds, err := cs.Current(ctx)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return domain.ConnectionNotConnected, nil
	}
	return creds.StatusAt(now), nil
}

// NormalizeSymbols trims entries, drops blanks and de-duplicates while
// preserving first-seen order.
func NormalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
