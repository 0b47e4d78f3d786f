// Package memory provides in-memory store implementations, used by tests and
// the --dev serve mode where no Postgres is available.
package memory

import (
	"context"
	"sync"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/store"
)

// CredentialStore is a mutex-guarded in-memory store.CredentialStore.
type CredentialStore struct {
	mu    sync.RWMutex
	creds *domain.Credentials
}

func NewCredentialStore() *CredentialStore { return &CredentialStore{} }

func (s *CredentialStore) Save(_ context.Context, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &creds
	return nil
}

func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

func (s *CredentialStore) Current(_ context.Context) (*domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, nil
	}
	c := *s.creds
	return &c, nil
}

// SymbolStore is a mutex-guarded in-memory store.SymbolStore.
type SymbolStore struct {
	mu      sync.RWMutex
	symbols []string
}

func NewSymbolStore() *SymbolStore { return &SymbolStore{} }

func (s *SymbolStore) Save(_ context.Context, symbols []string) error {
	normalized := store.NormalizeSymbols(symbols)
	if len(normalized) == 0 {
		return store.ErrEmptyUniverse
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = normalized
	return nil
}

func (s *SymbolStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.symbols == nil {
		return nil, nil
	}
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out, nil
}

// ResultStore is a mutex-guarded in-memory store.ResultStore. Snapshot and
// timestamp swap under one lock, so readers get either the prior pair or the
// new one.
type ResultStore struct {
	mu        sync.RWMutex
	latest    *domain.Results
	scannedAt domain.Time
}

func NewResultStore() *ResultStore { return &ResultStore{} }

func (s *ResultStore) Latest(_ context.Context) (*domain.Results, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, nil
}

func (s *ResultStore) LastScanTime(_ context.Context) (domain.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return 0, false, nil
	}
	return s.scannedAt, true, nil
}

func (s *ResultStore) Commit(_ context.Context, res *domain.Results, at domain.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = res
	s.scannedAt = at
	return nil
}
