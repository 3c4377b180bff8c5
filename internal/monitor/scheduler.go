// Package monitor runs polling cycles: pick the due cases, gate each on
// budget, resolve with bounded concurrency, then persist, bill and notify.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/renderinc/docket-monitor/internal/model"
	"github.com/renderinc/docket-monitor/internal/source"
)

// ErrUntrackedSpend marks a paid fetch whose cost could not be recorded
var ErrUntrackedSpend = errors.New("untracked spend")

// Registry supplies due cases and records completed checks
type Registry interface {
	ListDue(ctx context.Context, now time.Time) ([]*model.Case, error)
	MarkChecked(ctx context.Context, id string, when time.Time) error
}

// DocketStore merges newly observed entries
type DocketStore interface {
	MergeEntries(ctx context.Context, caseID string, candidates []model.DocketEntry, seen time.Time) ([]model.DocketEntry, error)
	TouchUpdated(ctx context.Context, id string, when time.Time) error
}

// Ledger is the budget gate and cost sink
type Ledger interface {
	CanAfford(ctx context.Context, estimatedUnits int) (bool, error)
	RecordCost(ctx context.Context, caseID string, action model.Action, pages int, cost decimal.Decimal) error
	CurrentQuarterSpend(ctx context.Context) (decimal.Decimal, error)
}

// Resolver produces a case's current entries
type Resolver interface {
	Resolve(ctx context.Context, c *model.Case) source.Resolution
}

// Notifier delivers new entries; the error reports failed channels
type Notifier interface {
	Deliver(ctx context.Context, c model.Summary, entries []model.DocketEntry) error
}

// Indexer makes new entries searchable
type Indexer interface {
	IndexEntries(c model.Summary, entries []model.DocketEntry) error
}

// Config holds scheduler settings
type Config struct {
	Concurrency    int
	EstimatedPages int
	CycleInterval  time.Duration
	// InWindow reports whether t is inside the recommended polling hours;
	// nil disables the advisory
	InWindow func(t time.Time) bool
	// NotifyTimeout bounds one case's delivery across all channels
	NotifyTimeout time.Duration
}

const defaultNotifyTimeout = 2 * time.Minute

// Scheduler handles polling cycles
type Scheduler struct {
	registry Registry
	store    DocketStore
	ledger   Ledger
	router   Resolver
	notifier Notifier // optional
	index    Indexer  // optional
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithNotifier sets the notification dispatcher
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithIndexer sets the search index
func WithIndexer(i Indexer) Option {
	return func(s *Scheduler) { s.index = i }
}

// WithClock replaces time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler creates a new scheduler
func NewScheduler(registry Registry, store DocketStore, ledger Ledger, router Resolver, cfg Config, opts ...Option) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Minute
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	s := &Scheduler{
		registry: registry,
		store:    store,
		ledger:   ledger,
		router:   router,
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CycleStats holds the outcome of one cycle
type CycleStats struct {
	Due            int
	Checked        int
	Skipped        int // not affordable this cycle
	FreeHits       int
	PaidChecks     int
	Failed         int
	NewEntries     int
	Notified       int
	UntrackedSpend int
	Spend          decimal.Decimal
	Duration       time.Duration
}

// RunCycle performs one polling cycle. Cancelling ctx stops dispatch of
// further cases; cases already dispatched run to completion.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleStats, error) {
	startTime := s.now()
	stats := &CycleStats{Spend: decimal.Zero}

	if s.cfg.InWindow != nil && !s.cfg.InWindow(startTime) {
		s.logger.Info("outside recommended PACER polling hours, continuing anyway")
	}

	// 1. Collect due cases
	due, err := s.registry.ListDue(ctx, startTime)
	if err != nil {
		return nil, fmt.Errorf("list due cases: %w", err)
	}
	stats.Due = len(due)
	s.logger.Info("starting monitoring cycle", "due", len(due))

	// 2. Dispatch with bounded concurrency, gating each case on budget
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	work := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var dispatchErr error

	for _, c := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			dispatchErr = err
			break
		}
		// Acquire can win a race with cancellation
		if err := ctx.Err(); err != nil {
			sem.Release(1)
			dispatchErr = err
			break
		}

		ok, err := s.ledger.CanAfford(work, s.cfg.EstimatedPages)
		if err != nil {
			s.logger.Error("budget check failed, skipping case", "case_id", c.ID, "error", err)
		} else if !ok {
			s.logger.Warn("approaching budget limit, skipping case", "case_id", c.ID)
		}
		if err != nil || !ok {
			sem.Release(1)
			mu.Lock()
			stats.Skipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(c *model.Case) {
			defer wg.Done()
			fresh, err := s.checkCase(work, c, stats, &mu)
			// Delivery does not hold a slot; slow channels must not stall
			// the remaining cases
			sem.Release(1)
			if err != nil {
				s.logger.Error("case check failed", "case_id", c.ID, "error", err)
				return
			}
			s.notify(work, c, fresh, stats, &mu)
		}(c)
	}

	wg.Wait()

	// 3. Aggregate
	stats.Duration = s.now().Sub(startTime)
	attrs := []any{
		"due", stats.Due, "checked", stats.Checked, "skipped", stats.Skipped,
		"free", stats.FreeHits, "paid", stats.PaidChecks, "failed", stats.Failed,
		"new_entries", stats.NewEntries, "spend", stats.Spend.StringFixed(2),
		"duration", stats.Duration,
	}
	if spend, err := s.ledger.CurrentQuarterSpend(work); err == nil {
		attrs = append(attrs, "quarter_spend", spend.StringFixed(2))
	}
	s.logger.Info("monitoring cycle complete", attrs...)

	if dispatchErr != nil {
		return stats, fmt.Errorf("cycle interrupted: %w", dispatchErr)
	}
	return stats, nil
}

// checkCase runs resolve, merge, record cost and mark checked, in that
// order, for one case. It returns the entries that were new.
func (s *Scheduler) checkCase(ctx context.Context, c *model.Case, stats *CycleStats, mu *sync.Mutex) ([]model.DocketEntry, error) {
	log := s.logger.With("case_id", c.ID)

	// 1. Resolve, free source first
	res := s.router.Resolve(ctx, c)
	if res.Err != nil {
		// Transient: no data this cycle, but still counts as checked
		mu.Lock()
		stats.Failed++
		mu.Unlock()
		if err := s.registry.MarkChecked(ctx, c.ID, s.now()); err != nil {
			return nil, fmt.Errorf("mark checked after failed resolve: %w", err)
		}
		return nil, nil
	}

	// 2. Merge; only entries not already stored survive
	seen := s.now()
	fresh, mergeErr := s.store.MergeEntries(ctx, c.ID, res.Entries, seen)

	// 3. Record what the paid fetch cost, even if the merge failed
	if res.Charge != nil {
		if err := s.ledger.RecordCost(ctx, c.ID, model.ActionDocketCheck, res.Charge.Pages, res.Charge.Amount); err != nil {
			log.Error("failed to record cost of paid fetch",
				"alert", "untracked_spend",
				"pages", res.Charge.Pages,
				"cost", res.Charge.Amount.StringFixed(2),
				"error", err)
			mu.Lock()
			stats.UntrackedSpend++
			stats.Failed++
			mu.Unlock()
			return nil, fmt.Errorf("%w: %s for %s: %w", ErrUntrackedSpend, res.Charge.Amount.StringFixed(2), c.ID, err)
		}
	}

	mu.Lock()
	switch res.Source {
	case source.KindFree:
		stats.FreeHits++
	case source.KindPaid:
		stats.PaidChecks++
		stats.Spend = stats.Spend.Add(res.Charge.Amount)
	}
	mu.Unlock()

	if mergeErr != nil {
		mu.Lock()
		stats.Failed++
		mu.Unlock()
		return nil, fmt.Errorf("merge entries: %w", mergeErr)
	}

	// 4. Mark checked whether or not anything was new
	if err := s.registry.MarkChecked(ctx, c.ID, s.now()); err != nil {
		mu.Lock()
		stats.Failed++
		mu.Unlock()
		return nil, fmt.Errorf("mark checked: %w", err)
	}

	mu.Lock()
	stats.Checked++
	stats.NewEntries += len(fresh)
	mu.Unlock()

	if len(fresh) == 0 {
		return nil, nil
	}
	log.Info("new docket entries", "count", len(fresh), "source", res.Source)

	if err := s.store.TouchUpdated(ctx, c.ID, seen); err != nil {
		log.Warn("failed to set last_updated", "error", err)
	}
	if s.index != nil {
		if err := s.index.IndexEntries(c.Summary(), fresh); err != nil {
			log.Warn("failed to index entries", "error", err)
		}
	}
	return fresh, nil
}

// notify delivers fresh entries under one deadline for all channels
func (s *Scheduler) notify(ctx context.Context, c *model.Case, fresh []model.DocketEntry, stats *CycleStats, mu *sync.Mutex) {
	if len(fresh) == 0 || !c.NotificationEnabled || s.notifier == nil {
		return
	}
	mu.Lock()
	stats.Notified++
	mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.Deliver(ctx, c.Summary(), fresh); err != nil {
		s.logger.Error("notification delivery failed", "case_id", c.ID, "error", err)
	}
}

// Run repeats cycles every CycleInterval until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting docket monitor",
		"concurrency", s.cfg.Concurrency,
		"cycle_interval", s.cfg.CycleInterval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("docket monitor stopped")
			return nil
		case <-timer.C:
		}

		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("monitoring cycle failed", "error", err)
		}
		timer.Reset(s.cfg.CycleInterval)
	}
}
