package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/renderinc/docket-monitor/internal/budget"
	"github.com/renderinc/docket-monitor/internal/config"
	"github.com/renderinc/docket-monitor/internal/courtlistener"
	"github.com/renderinc/docket-monitor/internal/monitor"
	"github.com/renderinc/docket-monitor/internal/notify"
	"github.com/renderinc/docket-monitor/internal/pacer"
	"github.com/renderinc/docket-monitor/internal/registry"
	"github.com/renderinc/docket-monitor/internal/search"
	"github.com/renderinc/docket-monitor/internal/source"
	"github.com/renderinc/docket-monitor/internal/storage"
)

// app holds the wired components shared by subcommands
type app struct {
	cfg      *config.Config
	db       *storage.DB
	idx      *search.Index
	registry *registry.Registry
	ledger   *budget.Ledger
	logger   *slog.Logger
}

// openApp loads config and opens storage, the search index, the registry
// and the ledger
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	db, err := storage.Open(cfg.Storage.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	idx, err := search.Open(cfg.Storage.IndexPath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening search index: %w", err)
	}

	return &app{
		cfg:      cfg,
		db:       db,
		idx:      idx,
		registry: registry.New(db, cfg.Polling.Intervals(), cfg.Polling.Jitter, registry.WithLogger(logger)),
		ledger:   budget.NewLedger(db, cfg.Budget.Rates(), budget.WithLogger(logger)),
		logger:   logger,
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.idx.Close(), a.db.Close())
}

// scheduler wires the sources, router and notifiers. freeOnly runs without
// a paid source, so cases missing from the archive fail instead of billing.
func (a *app) scheduler(freeOnly bool) (*monitor.Scheduler, error) {
	cfg := a.cfg

	var paid source.PaidSource
	if !freeOnly {
		if err := cfg.ValidatePaidSource(); err != nil {
			return nil, fmt.Errorf("%w (use --free-only to poll the archive alone)", err)
		}
		paid = pacer.NewClient(cfg.Pacer.ScraperURL, cfg.Pacer.Username, cfg.Pacer.Password, cfg.Polling.RequestTimeout)
	}

	free := courtlistener.NewClient(cfg.CourtListener.BaseURL, cfg.CourtListener.Token)
	if cfg.CourtListener.Token == "" {
		a.logger.Warn("no CourtListener token configured, archive requests are rate limited")
	}

	router := source.NewRouter(free, paid, cfg.Budget.Rates(), source.Config{
		CacheSize: cfg.CourtListener.CacheSize,
		CacheTTL:  cfg.CourtListener.CacheTTL,
		Timeout:   cfg.Polling.RequestTimeout,
	}, a.logger)

	opts := []monitor.Option{
		monitor.WithIndexer(a.idx),
		monitor.WithLogger(a.logger),
	}
	dispatcher := notify.FromConfig(cfg.Notify, a.logger)
	if channels := dispatcher.Channels(); len(channels) > 0 {
		a.logger.Info("notification channels configured", "channels", channels)
		opts = append(opts, monitor.WithNotifier(dispatcher))
	} else {
		a.logger.Warn("no notification channels configured")
	}

	return monitor.NewScheduler(a.registry, a.db, a.ledger, router, monitor.Config{
		Concurrency:    cfg.Polling.Concurrency,
		EstimatedPages: cfg.Budget.EstimatedPages,
		CycleInterval:  cfg.Polling.CycleInterval,
		InWindow:       cfg.Polling.OperatingHours.Contains,
	}, opts...), nil
}

// withApp opens the app for the duration of fn
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to close storage", "error", err)
		}
	}()
	return fn(ctx, a)
}
