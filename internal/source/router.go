// Package source resolves a case's current docket, preferring the free
// RECAP archive and paying for a PACER report only on a miss.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/renderinc/docket-monitor/internal/budget"
	"github.com/renderinc/docket-monitor/internal/courtlistener"
	"github.com/renderinc/docket-monitor/internal/model"
)

// FreeSource looks up a docket at no cost
type FreeSource interface {
	DocketEntries(ctx context.Context, courtID, caseNumber string) ([]model.DocketEntry, error)
}

// PaidSource fetches a docket report and reports the billed pages
type PaidSource interface {
	FetchDocket(ctx context.Context, courtID, caseNumber string) ([]model.DocketEntry, int, error)
}

// Kind names the path that produced a resolution
type Kind string

const (
	KindFree Kind = "free"
	KindPaid Kind = "paid"
	KindNone Kind = "none"
)

// Charge is the cost incurred by a paid fetch
type Charge struct {
	Pages  int
	Amount decimal.Decimal
}

// Resolution is the outcome of resolving one case. Entries is never nil.
type Resolution struct {
	Entries []model.DocketEntry
	Source  Kind
	Cached  bool
	Charge  *Charge // nil unless the paid source was used
	Err     error   // set when no source produced data
}

// Router tries the free source, then the paid one
type Router struct {
	free    FreeSource
	paid    PaidSource
	rates   budget.Rates
	cache   *expirable.LRU[string, []model.DocketEntry]
	timeout time.Duration
	logger  *slog.Logger
}

// Config holds router settings
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
	// Timeout bounds each individual source call
	Timeout time.Duration
}

// NewRouter creates a router. free may be nil when no free source is
// configured.
func NewRouter(free FreeSource, paid PaidSource, rates budget.Rates, cfg Config, logger *slog.Logger) *Router {
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		free:    free,
		paid:    paid,
		rates:   rates,
		cache:   expirable.NewLRU[string, []model.DocketEntry](cfg.CacheSize, nil, cfg.CacheTTL),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Resolve returns the case's docket entries. Source failures never escape
// as errors; they come back as a KindNone resolution with Err set.
func (r *Router) Resolve(ctx context.Context, c *model.Case) Resolution {
	log := r.logger.With("case_id", c.ID, "court", c.CourtID)

	// 1. Free source, through the cache
	if entries, cached, err := r.lookupFree(ctx, c); err == nil {
		log.Debug("resolved from free source", "source", KindFree, "entries", len(entries), "cached", cached)
		return Resolution{Entries: entries, Source: KindFree, Cached: cached}
	} else if !errors.Is(err, courtlistener.ErrNotFound) && !errors.Is(err, errNoFreeData) {
		log.Warn("free source failed, falling back to paid", "error", err)
	}

	// 2. Paid source
	if r.paid == nil {
		return Resolution{Entries: []model.DocketEntry{}, Source: KindNone, Err: errors.New("no paid source configured")}
	}

	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	entries, pages, err := r.paid.FetchDocket(callCtx, c.CourtID, c.CaseNumber)
	if err != nil {
		log.Warn("paid source failed", "source", KindPaid, "error", err)
		return Resolution{Entries: []model.DocketEntry{}, Source: KindNone, Err: fmt.Errorf("paid fetch: %w", err)}
	}
	if entries == nil {
		entries = []model.DocketEntry{}
	}

	charge := &Charge{Pages: pages, Amount: r.rates.PageCost(pages)}
	log.Info("resolved from paid source", "source", KindPaid, "entries", len(entries),
		"pages", pages, "cost", charge.Amount.StringFixed(2))
	return Resolution{Entries: entries, Source: KindPaid, Charge: charge}
}

var errNoFreeData = errors.New("free source has no entries")

func (r *Router) lookupFree(ctx context.Context, c *model.Case) ([]model.DocketEntry, bool, error) {
	if r.free == nil {
		return nil, false, errNoFreeData
	}

	key := cacheKey(c.CourtID, c.CaseNumber)
	if entries, ok := r.cache.Get(key); ok {
		return cloneEntries(entries), true, nil
	}

	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	entries, err := r.free.DocketEntries(callCtx, c.CourtID, c.CaseNumber)
	if err != nil {
		return nil, false, err
	}
	// A docket RECAP knows of but holds no entries for is no help
	if len(entries) == 0 {
		return nil, false, errNoFreeData
	}

	r.cache.Add(key, cloneEntries(entries))
	return entries, false, nil
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Invalidate drops a case from the free-source cache
func (r *Router) Invalidate(courtID, caseNumber string) {
	r.cache.Remove(cacheKey(courtID, caseNumber))
}

func cacheKey(courtID, caseNumber string) string {
	return courtID + ":" + caseNumber
}

// cloneEntries keeps cached slices safe from callers that set CaseID or FirstSeen
func cloneEntries(in []model.DocketEntry) []model.DocketEntry {
	out := make([]model.DocketEntry, len(in))
	copy(out, in)
	return out
}
