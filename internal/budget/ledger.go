// Package budget tracks metered spend against a per-quarter cap.
//
// The ledger never caches totals: every affordability question re-sums the
// raw cost records of the current quarter, and a record's quarter is derived
// from its own timestamp, never from the time it is read.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/renderinc/docket-monitor/internal/model"
)

// ErrNegativeCost is returned when asked to record a cost below zero
var ErrNegativeCost = errors.New("cost must not be negative")

// Store is the durable side of the ledger
type Store interface {
	InsertCost(ctx context.Context, rec *model.CostRecord) error
	SumCostsByQuarter(ctx context.Context, quarter string) (decimal.Decimal, error)
	CostsSince(ctx context.Context, since time.Time) ([]model.CostRecord, error)
}

// Rates are the pricing and cap parameters of the paid source
type Rates struct {
	QuarterlyBudget decimal.Decimal
	SafetyBuffer    decimal.Decimal
	PerPageRate     decimal.Decimal
	PerDocumentCap  decimal.Decimal
}

// Limit is the spend ceiling the ledger enforces: budget minus buffer
func (r Rates) Limit() decimal.Decimal {
	return r.QuarterlyBudget.Sub(r.SafetyBuffer)
}

// Estimate prices units of paid work at the per-page rate
func (r Rates) Estimate(units int) decimal.Decimal {
	return r.PerPageRate.Mul(decimal.NewFromInt(int64(units)))
}

// PageCost is the charge for a fetch of pages, capped per document
func (r Rates) PageCost(pages int) decimal.Decimal {
	if pages < 0 {
		pages = 0
	}
	return decimal.Min(r.Estimate(pages), r.PerDocumentCap)
}

// Ledger records spend and answers affordability questions
type Ledger struct {
	store  Store
	rates  Rates
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a ledger over store
func NewLedger(store Store, rates Rates, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		rates:  rates,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rates returns the ledger's pricing parameters
func (l *Ledger) Rates() Rates {
	return l.rates
}

// RecordCost appends a cost record tagged with the current quarter. The
// record is durable when RecordCost returns nil.
func (l *Ledger) RecordCost(ctx context.Context, caseID string, action model.Action, pages int, cost decimal.Decimal) error {
	if cost.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeCost, cost)
	}

	now := l.now().UTC()
	rec := &model.CostRecord{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Action:    action,
		Pages:     pages,
		Cost:      cost,
		Quarter:   model.QuarterLabel(now),
		CreatedAt: now,
	}
	if err := l.store.InsertCost(ctx, rec); err != nil {
		return fmt.Errorf("record cost: %w", err)
	}

	l.logger.Debug("cost recorded",
		"case_id", caseID,
		"action", action,
		"pages", pages,
		"cost", cost.StringFixed(2),
		"quarter", rec.Quarter)
	return nil
}

// CurrentQuarterSpend sums every raw record of the quarter containing now
func (l *Ledger) CurrentQuarterSpend(ctx context.Context) (decimal.Decimal, error) {
	spend, err := l.store.SumCostsByQuarter(ctx, model.QuarterLabel(l.now()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum quarter spend: %w", err)
	}
	return spend, nil
}

// CanAfford reports whether estimatedUnits more pages keep spend strictly
// below budget minus buffer
func (l *Ledger) CanAfford(ctx context.Context, estimatedUnits int) (bool, error) {
	spend, err := l.CurrentQuarterSpend(ctx)
	if err != nil {
		return false, err
	}
	return spend.Add(l.rates.Estimate(estimatedUnits)).LessThan(l.rates.Limit()), nil
}

// Report is a snapshot of the current quarter's spend
type Report struct {
	Quarter   string
	Spent     decimal.Decimal
	Budget    decimal.Decimal
	Buffer    decimal.Decimal
	Limit     decimal.Decimal
	Remaining decimal.Decimal // budget minus spent
	Daily     []model.DailyCost
}

// QuarterReport builds the spend summary for the current quarter, with
// per-day totals in chronological order
func (l *Ledger) QuarterReport(ctx context.Context) (*Report, error) {
	now := l.now()
	quarter := model.QuarterLabel(now)

	recs, err := l.store.CostsSince(ctx, model.QuarterStart(now))
	if err != nil {
		return nil, fmt.Errorf("list quarter costs: %w", err)
	}

	report := &Report{
		Quarter: quarter,
		Spent:   decimal.Zero,
		Budget:  l.rates.QuarterlyBudget,
		Buffer:  l.rates.SafetyBuffer,
		Limit:   l.rates.Limit(),
		Daily:   []model.DailyCost{},
	}

	for _, r := range recs {
		// Only records labelled with this quarter count
		if r.Quarter != quarter {
			continue
		}
		report.Spent = report.Spent.Add(r.Cost)

		day := time.Date(r.CreatedAt.Year(), r.CreatedAt.Month(), r.CreatedAt.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(report.Daily); n > 0 && report.Daily[n-1].Date.Equal(day) {
			report.Daily[n-1].Total = report.Daily[n-1].Total.Add(r.Cost)
			continue
		}
		report.Daily = append(report.Daily, model.DailyCost{Date: day, Total: r.Cost})
	}

	report.Remaining = report.Budget.Sub(report.Spent)
	return report, nil
}
