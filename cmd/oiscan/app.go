package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oiscan/oiscan/internal/broker/fyers"
	"github.com/oiscan/oiscan/internal/config"
	"github.com/oiscan/oiscan/internal/index"
	httpapi "github.com/oiscan/oiscan/internal/interfaces/http"
	"github.com/oiscan/oiscan/internal/metrics"
	"github.com/oiscan/oiscan/internal/scan"
	"github.com/oiscan/oiscan/internal/store"
	"github.com/oiscan/oiscan/internal/store/memory"
	"github.com/oiscan/oiscan/internal/store/postgres"
	"github.com/oiscan/oiscan/internal/store/rediscache"
)

// app bundles the wired components shared by serve and scan.
type app struct {
	cfg      config.Config
	reg      *metrics.Registry
	creds    store.CredentialStore
	symbols  store.SymbolStore
	results  store.ResultStore
	broker   *fyers.Client
	orch     *scan.Orchestrator
	indices  *index.Service
	flusher  httpapi.CacheFlusher
	shutdown []func()
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, reg: metrics.New(prometheus.NewRegistry())}

	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		a.shutdown = append(a.shutdown, func() { db.Close() })
		a.creds = postgres.NewCredentialStore(db)
		a.symbols = postgres.NewSymbolStore(db)
		a.results = postgres.NewResultStore(db)
		log.Info().Msg("using postgres stores")
	} else {
		a.creds = memory.NewCredentialStore()
		a.symbols = memory.NewSymbolStore()
		a.results = memory.NewResultStore()
		log.Warn().Msg("no database configured, using in-memory stores")
	}

	var quoteCache index.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, running without cache")
		} else {
			a.shutdown = append(a.shutdown, func() { rdb.Close() })
			a.results = rediscache.NewResultCache(a.results, rdb, cfg.Redis.TTL, log.Logger, a.reg)
			a.flusher = rediscache.NewFlusher(rdb)
			quoteCache = rediscache.NewQuoteCache(rdb, cfg.Indices.RefreshInterval, log.Logger, a.reg)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("redis cache enabled")
		}
	}

	a.broker, err = fyers.NewClient(fyers.Config{
		BaseURL:         cfg.Fyers.BaseURL,
		Timeout:         cfg.Fyers.Timeout,
		RPS:             cfg.Fyers.RPS,
		Burst:           cfg.Fyers.Burst,
		BreakerFailures: cfg.Fyers.BreakerFailures,
		BreakerCooldown: cfg.Fyers.BreakerCooldown,
		Resolution:      cfg.Fyers.Resolution,
	}, log.Logger)
	if err != nil {
		return nil, err
	}

	a.orch = scan.New(scan.Options{
		Credentials: a.creds,
		Symbols:     a.symbols,
		Results:     a.results,
		Market:      a.broker,
		Refresher:   a.broker,
		Config: scan.Config{
			Cooldown:      cfg.Scan.Cooldown,
			Workers:       cfg.Scan.Workers,
			RefreshWindow: cfg.Scan.RefreshWindow,
		},
		Logger:  log.Logger,
		Metrics: a.reg,
	})

	indexCfg := index.Config{Names: cfg.Indices.Names, RefreshInterval: cfg.Indices.RefreshInterval}
	if len(indexCfg.Names) == 0 {
		indexCfg.Names = index.DefaultNames
	}
	a.indices = index.New(a.creds, a.broker, quoteCache, indexCfg, log.Logger, a.reg)

	return a, nil
}

func (a *app) close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	a.indices.Start(ctx)
	defer a.indices.Stop()

	if a.cfg.Indices.Stream {
		go a.runQuoteStream(ctx)
	}

	handlers := httpapi.NewHandlers(httpapi.HandlerOptions{
		Credentials:       a.creds,
		Symbols:           a.symbols,
		Results:           a.results,
		Scanner:           a.orch,
		Indices:           a.indices,
		Flusher:           a.flusher,
		DefaultIndexNames: a.indices.Names(),
		MetricsHandler:    a.reg.Handler(),
		Logger:            log.Logger,
	})

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}, handlers, log.Logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runQuoteStream keeps a live index quote subscription feeding the cache.
// It needs connected credentials; it retries until they appear.
func (a *app) runQuoteStream(ctx context.Context) {
	stream := fyers.NewQuoteStream(a.cfg.Fyers.StreamURL, a.indices.HandleTick, log.Logger)
	for {
		creds, err := a.creds.Current(ctx)
		if err == nil && creds != nil {
			if err := stream.Run(ctx, *creds, a.indices.Names()); err != nil && ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}
}

func runScanOnce(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("qualified (%d):\n", len(results.Qualified))
	for _, d := range results.Qualified {
		fmt.Printf("  %-24s %s\n", d.Symbol, d.Side)
	}
	fmt.Printf("disqualified (%d):\n", len(results.Disqualified))
	for _, d := range results.Disqualified {
		fmt.Printf("  %-24s %s\n", d.Symbol, d.Side)
	}
	fmt.Printf("ignored (%d):\n", len(results.Ignored))
	for _, d := range results.Ignored {
		fmt.Printf("  %s\n", d.Symbol)
	}
	return nil
}
