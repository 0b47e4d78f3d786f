// Package index serves the dashboard's index performance widget. It is
// decoupled from the scan cadence: quotes refresh on their own polling
// interval and a missing quote is a per-entry gap, never an error.
package index

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/metrics"
	"github.com/oiscan/oiscan/internal/store"
)

// QuoteSource is the broker surface the service needs. Names absent from the
// returned map had no retrievable quote.
type QuoteSource interface {
	Quotes(ctx context.Context, creds domain.Credentials, names []string) (map[string]domain.Quote, error)
}

// Cache stores recent percent changes per index name. Implemented by the
// Redis quote cache; nil disables caching.
type Cache interface {
	Get(ctx context.Context, name string) (float64, bool)
	Put(ctx context.Context, name string, changePercent float64)
}

// Config holds index service settings.
type Config struct {
	// Names is the default index list the background poller keeps warm.
	Names []string
	// RefreshInterval is the poll cadence; the dashboard reads on the same
	// rhythm.
	RefreshInterval time.Duration
}

// DefaultNames is the dashboard's index list.
var DefaultNames = []string{
	"NIFTY50", "BANKNIFTY", "NIFTYMIDSELECT", "SENSEX", "FINNIFTY",
	"NIFTYPVTBANK", "NIFTYPSUBANK", "NIFTYIT", "NIFTYPHARMA", "NIFTYFMCG",
	"NIFTYAUTO", "NIFTYMETAL", "NIFTYENERGY", "NIFTYREALTY",
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Names: DefaultNames, RefreshInterval: 60 * time.Second}
}

// Service fetches index performance figures.
type Service struct {
	creds  store.CredentialStore
	source QuoteSource
	cache  Cache
	cfg    Config
	log    zerolog.Logger
	reg    *metrics.Registry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the service. cache may be nil.
func New(creds store.CredentialStore, source QuoteSource, cache Cache, cfg Config, log zerolog.Logger, reg *metrics.Registry) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 60 * time.Second
	}
	return &Service{creds: creds, source: source, cache: cache, cfg: cfg, log: log, reg: reg}
}

// Fetch returns one entry per requested name, in request order. A name whose
// quote could not be retrieved gets a nil ChangePercent; partial failures
// never become run-level errors.
func (s *Service) Fetch(ctx context.Context, names []string) []domain.IndexPerformance {
	out := make([]domain.IndexPerformance, len(names))
	for i, name := range names {
		out[i] = domain.IndexPerformance{Name: name}
	}

	quotes := map[string]domain.Quote{}
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if s.cache != nil {
			if chp, ok := s.cache.Get(ctx, name); ok {
				quotes[name] = domain.Quote{ChangePercent: chp}
				continue
			}
		}
		missing = append(missing, name)
	}

	if len(missing) > 0 {
		if fetched := s.fetchQuotes(ctx, missing); fetched != nil {
			for name, q := range fetched {
				quotes[name] = q
				if s.cache != nil {
					s.cache.Put(ctx, name, q.ChangePercent)
				}
			}
		}
	}

	for i, name := range names {
		if q, ok := quotes[name]; ok {
			chp := q.ChangePercent
			out[i].ChangePercent = &chp
		}
	}
	return out
}

func (s *Service) fetchQuotes(ctx context.Context, names []string) map[string]domain.Quote {
	creds, err := s.creds.Current(ctx)
	if err != nil || creds == nil {
		s.reg.QuoteFetches.WithLabelValues("skipped").Inc()
		return nil
	}
	if creds.StatusAt(time.Now()) != domain.ConnectionConnected {
		s.reg.QuoteFetches.WithLabelValues("skipped").Inc()
		return nil
	}

	quotes, err := s.source.Quotes(ctx, *creds, names)
	if err != nil {
		s.reg.QuoteFetches.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Msg("index quote fetch failed")
		return nil
	}
	s.reg.QuoteFetches.WithLabelValues("ok").Inc()
	return quotes
}

// Start launches the background poller that keeps the configured index list
// warm in the cache. Safe to call once; Stop shuts it down.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()

		s.Fetch(ctx, s.cfg.Names)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Fetch(ctx, s.cfg.Names)
			}
		}
	}()
}

// Stop halts the poller and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Names returns the configured default index list.
func (s *Service) Names() []string {
	return s.cfg.Names
}

// HandleTick feeds a live stream update into the cache, refreshing the value
// the next Fetch serves.
func (s *Service) HandleTick(name string, changePercent float64) {
	if s.cache == nil {
		return
	}
	s.cache.Put(context.Background(), name, changePercent)
}
