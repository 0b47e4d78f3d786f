// Package scan coordinates one qualification scan run: precondition checks,
// the global cooldown gate, the bounded fan-out over the symbol universe and
// the atomic snapshot commit.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/metrics"
	"github.com/oiscan/oiscan/internal/store"
)

// MarketData is the broker surface the orchestrator needs per symbol.
type MarketData interface {
	History(ctx context.Context, creds domain.Credentials, symbol string) ([]domain.Candle, error)
	OptionChain(ctx context.Context, creds domain.Credentials, symbol string) (domain.OIData, error)
}

// TokenRefresher rotates a soon-to-expire access token. Optional.
type TokenRefresher interface {
	Refresh(ctx context.Context, creds domain.Credentials) (domain.Credentials, error)
}

// Config holds orchestrator settings.
type Config struct {
	// Cooldown is the minimum interval between scan admissions, measured on
	// the orchestrator's clock from the start of the last admitted run. The
	// dashboard's client-side constant is advisory; this value is
	// authoritative.
	Cooldown time.Duration

	// Workers bounds the per-symbol fan-out; the broker API's rate limits
	// are the real throughput constraint.
	Workers int

	// RefreshWindow triggers a token refresh when the credentials expire
	// within it and a refresh token is on file. Zero disables refresh.
	RefreshWindow time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Cooldown:      60 * time.Second,
		Workers:       4,
		RefreshWindow: 5 * time.Minute,
	}
}

// Orchestrator runs qualification scans. At most one run is in flight at a
// time; concurrent callers and callers inside the cooldown window are both
// rejected with a RateLimitError.
type Orchestrator struct {
	creds     store.CredentialStore
	symbols   store.SymbolStore
	results   store.ResultStore
	market    MarketData
	refresher TokenRefresher

	cfg Config
	log zerolog.Logger
	reg *metrics.Registry
	now func() time.Time

	mu        sync.Mutex
	running   bool
	lastStart time.Time
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Credentials store.CredentialStore
	Symbols     store.SymbolStore
	Results     store.ResultStore
	Market      MarketData
	Refresher   TokenRefresher // optional
	Config      Config
	Logger      zerolog.Logger
	Metrics     *metrics.Registry
	Now         func() time.Time // optional, defaults to time.Now
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		creds:     opts.Credentials,
		symbols:   opts.Symbols,
		results:   opts.Results,
		market:    opts.Market,
		refresher: opts.Refresher,
		cfg:       cfg,
		log:       opts.Logger,
		reg:       opts.Metrics,
		now:       now,
	}
}

// Run executes one scan and commits the snapshot. Preconditions are checked
// in a fixed order before any broker call: credentials, universe, then the
// cooldown gate, each failing with its own matchable error.
func (o *Orchestrator) Run(ctx context.Context) (*domain.Results, error) {
	creds, err := o.checkCredentials(ctx)
	if err != nil {
		return nil, err
	}

	universe, err := o.symbols.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading symbol universe: %w", err)
	}
	if len(universe) == 0 {
		return nil, ErrNoSymbolList
	}

	if err := o.admit(); err != nil {
		return nil, err
	}
	defer o.release()

	o.reg.ActiveScans.Inc()
	defer o.reg.ActiveScans.Dec()

	started := o.now()
	o.log.Info().Int("universe", len(universe)).Msg("scan started")

	creds = o.maybeRefresh(ctx, creds)

	results := o.fanOut(ctx, creds, universe)

	completed := o.now()
	if err := o.results.Commit(ctx, results, domain.FromStdTime(completed)); err != nil {
		o.reg.ScansTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persisting scan snapshot: %w", err)
	}

	o.reg.ScanDuration.Observe(completed.Sub(started).Seconds())
	o.reg.ScansTotal.WithLabelValues("ok").Inc()
	o.log.Info().
		Int("qualified", len(results.Qualified)).
		Int("disqualified", len(results.Disqualified)).
		Int("ignored", len(results.Ignored)).
		Dur("took", completed.Sub(started)).
		Msg("scan completed")

	return results, nil
}

// checkCredentials snapshots the credential record for the run's duration,
// so a save or clear mid-run can't corrupt in-flight fetches.
func (o *Orchestrator) checkCredentials(ctx context.Context) (domain.Credentials, error) {
	creds, err := o.creds.Current(ctx)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("loading credentials: %w", err)
	}
	if creds == nil {
		return domain.Credentials{}, ErrNoCredentials
	}
	if creds.StatusAt(o.now()) == domain.ConnectionExpired {
		return domain.Credentials{}, ErrCredentialsExpired
	}
	return *creds, nil
}

// admit is the single-flight and cooldown gate. Both rejection cases look
// identical to the caller: a RateLimitError with the remaining wait.
func (o *Orchestrator) admit() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if o.running {
		rem := o.cfg.Cooldown - now.Sub(o.lastStart)
		if rem < 0 {
			rem = 0
		}
		return &RateLimitError{Remaining: rem}
	}
	if !o.lastStart.IsZero() {
		if elapsed := now.Sub(o.lastStart); elapsed < o.cfg.Cooldown {
			return &RateLimitError{Remaining: o.cfg.Cooldown - elapsed}
		}
	}
	o.running = true
	o.lastStart = now
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// maybeRefresh rotates the access token when it is close to expiry and a
// refresh token is on file. Failure is logged and the current token is kept;
// a rejected call later in the run just marks symbols ignored.
func (o *Orchestrator) maybeRefresh(ctx context.Context, creds domain.Credentials) domain.Credentials {
	if o.refresher == nil || o.cfg.RefreshWindow <= 0 {
		return creds
	}
	if creds.RefreshToken == "" || creds.Expiry.IsZero() {
		return creds
	}
	if creds.Expiry.Std().Sub(o.now()) > o.cfg.RefreshWindow {
		return creds
	}

	refreshed, err := o.refresher.Refresh(ctx, creds)
	if err != nil {
		o.log.Warn().Err(err).Msg("token refresh failed, continuing with current token")
		return creds
	}
	if err := o.creds.Save(ctx, refreshed); err != nil {
		o.log.Warn().Err(err).Msg("failed to persist refreshed token")
	}
	return refreshed
}

// fanOut scans every universe symbol through a bounded worker pool. Outcomes
// land in a slice indexed by universe position, so bucketing never depends on
// completion order.
func (o *Orchestrator) fanOut(ctx context.Context, creds domain.Credentials, universe []string) *domain.Results {
	outcomes := make([]domain.Derivative, len(universe))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := o.cfg.Workers
	if workers > len(universe) {
		workers = len(universe)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = o.scanSymbol(ctx, creds, universe[i])
			}
		}()
	}
	for i := range universe {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	results := &domain.Results{}
	for _, d := range outcomes {
		results.Add(d)
	}
	return results
}

// scanSymbol produces exactly one outcome per symbol. A candle fetch failure
// is absorbed as ignored so the run's buckets still partition the universe;
// an option-chain failure only loses the informational OI overlay.
func (o *Orchestrator) scanSymbol(ctx context.Context, creds domain.Credentials, symbol string) domain.Derivative {
	candles, err := o.market.History(ctx, creds, symbol)
	if err != nil {
		o.reg.SymbolFetchErrors.Inc()
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("candle fetch failed, marking ignored")
		return domain.Derivative{Symbol: symbol, Status: domain.StatusIgnored, Side: domain.SideLong}
	}

	oi, err := o.market.OptionChain(ctx, creds, symbol)
	if err != nil && !errors.Is(err, context.Canceled) {
		o.log.Debug().Err(err).Str("symbol", symbol).Msg("option chain unavailable")
		oi = domain.OIData{}
	}

	return domain.NewDerivative(symbol, candles, oi)
}
