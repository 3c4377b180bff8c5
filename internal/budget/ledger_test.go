package budget

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/docket-monitor/internal/model"
	"github.com/renderinc/docket-monitor/internal/storage"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultRates() Rates {
	return Rates{
		QuarterlyBudget: d("30"),
		SafetyBuffer:    d("5"),
		PerPageRate:     d("0.10"),
		PerDocumentCap:  d("3"),
	}
}

// clock is a settable time source
type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestLedger(t *testing.T, at time.Time) (*Ledger, *clock) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := &clock{t: at}
	return NewLedger(db, defaultRates(), WithClock(clk.Now)), clk
}

func TestRates_PageCost(t *testing.T) {
	r := defaultRates()
	assert.True(t, d("0.50").Equal(r.PageCost(5)))
	assert.True(t, d("3").Equal(r.PageCost(40)), "cap applies")
	assert.True(t, d("3").Equal(r.PageCost(30)), "exactly at cap")
	assert.True(t, r.PageCost(0).IsZero())
	assert.True(t, r.PageCost(-2).IsZero())
	assert.True(t, d("25").Equal(r.Limit()))
}

func TestLedger_ScenarioThreePaidChecks(t *testing.T) {
	ledger, _ := newTestLedger(t, time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for range 3 {
		require.NoError(t, ledger.RecordCost(ctx, "nysd:1", model.ActionDocketCheck, 5, ledger.Rates().PageCost(5)))
	}

	spend, err := ledger.CurrentQuarterSpend(ctx)
	require.NoError(t, err)
	assert.True(t, d("1.50").Equal(spend), spend.String())

	ok, err := ledger.CanAfford(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok, "1.50 + 0.30 < 25")
}

func TestLedger_CanAffordBoundary(t *testing.T) {
	ledger, _ := newTestLedger(t, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, ledger.RecordCost(ctx, "", model.ActionDocumentFetch, 0, d("24.70")))

	ok, err := ledger.CanAfford(ctx, 2) // 24.90 < 25
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.CanAfford(ctx, 3) // 25.00 is not < 25
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ledger.RecordCost(ctx, "", model.ActionDocumentFetch, 0, d("0.30")))
	ok, err = ledger.CanAfford(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok, "spend >= budget - buffer blocks even zero-unit work")
}

func TestLedger_CanAffordMonotonic(t *testing.T) {
	ledger, _ := newTestLedger(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	prev := true
	for i := 0; i < 40; i++ {
		ok, err := ledger.CanAfford(ctx, 3)
		require.NoError(t, err)
		if !prev {
			assert.False(t, ok, "affordability must not come back as spend grows (step %d)", i)
		}
		prev = ok
		require.NoError(t, ledger.RecordCost(ctx, "nysd:1", model.ActionDocketCheck, 10, d("1.00")))
	}
	assert.False(t, prev)
}

func TestLedger_QuarterBoundary(t *testing.T) {
	ledger, clk := newTestLedger(t, time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, ledger.RecordCost(ctx, "nysd:1", model.ActionDocketCheck, 20, d("2.00")))

	spend, err := ledger.CurrentQuarterSpend(ctx)
	require.NoError(t, err)
	assert.True(t, d("2").Equal(spend))

	// Next quarter starts empty
	clk.t = time.Date(2024, 4, 1, 0, 1, 0, 0, time.UTC)
	spend, err = ledger.CurrentQuarterSpend(ctx)
	require.NoError(t, err)
	assert.True(t, spend.IsZero())

	require.NoError(t, ledger.RecordCost(ctx, "nysd:1", model.ActionDocketCheck, 3, d("0.30")))
	spend, err = ledger.CurrentQuarterSpend(ctx)
	require.NoError(t, err)
	assert.True(t, d("0.30").Equal(spend))
}

func TestLedger_SpendIndependentOfInsertOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)

	type rec struct {
		at   time.Time
		cost decimal.Decimal
	}
	recs := []rec{
		{now.Add(-24 * time.Hour), d("0.40")},
		{now.Add(-100 * 24 * time.Hour), d("9.00")}, // previous quarter
		{now, d("1.10")},
		{now.Add(-9 * 24 * time.Hour), d("3.00")}, // 2024-07-01
		{now.Add(-10 * 24 * time.Hour), d("7.00")}, // 2024-06-30, previous quarter
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 5; trial++ {
		ledger, clk := newTestLedger(t, now)
		rng.Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
		for _, r := range recs {
			clk.t = r.at
			require.NoError(t, ledger.RecordCost(ctx, "nysd:1", model.ActionDocketCheck, 1, r.cost))
		}
		clk.t = now
		spend, err := ledger.CurrentQuarterSpend(ctx)
		require.NoError(t, err)
		assert.True(t, d("4.50").Equal(spend), "trial %d: %s", trial, spend)
	}
}

func TestLedger_RejectsNegativeCost(t *testing.T) {
	ledger, _ := newTestLedger(t, time.Now())
	err := ledger.RecordCost(context.Background(), "x:1", model.ActionDocketCheck, 1, d("-0.10"))
	assert.ErrorIs(t, err, ErrNegativeCost)
}

type failingStore struct{}

func (failingStore) InsertCost(context.Context, *model.CostRecord) error {
	return errors.New("disk full")
}

func (failingStore) SumCostsByQuarter(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("disk full")
}

func (failingStore) CostsSince(context.Context, time.Time) ([]model.CostRecord, error) {
	return nil, errors.New("disk full")
}

func TestLedger_StoreErrorsPropagate(t *testing.T) {
	ledger := NewLedger(failingStore{}, defaultRates())
	ctx := context.Background()

	assert.Error(t, ledger.RecordCost(ctx, "x:1", model.ActionDocketCheck, 1, d("0.10")))

	ok, err := ledger.CanAfford(ctx, 1)
	assert.Error(t, err)
	assert.False(t, ok)

	_, err = ledger.QuarterReport(ctx)
	assert.Error(t, err)
}

func TestLedger_QuarterReport(t *testing.T) {
	ledger, clk := newTestLedger(t, time.Date(2024, 10, 2, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, ledger.RecordCost(ctx, "a:1", model.ActionDocketCheck, 5, d("0.50")))
	clk.t = clk.t.Add(2 * time.Hour)
	require.NoError(t, ledger.RecordCost(ctx, "a:1", model.ActionDocketCheck, 3, d("0.30")))
	clk.t = time.Date(2024, 10, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.RecordCost(ctx, "b:1", model.ActionDocketCheck, 40, d("3.00")))

	report, err := ledger.QuarterReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-Q4", report.Quarter)
	assert.True(t, d("3.80").Equal(report.Spent))
	assert.True(t, d("26.20").Equal(report.Remaining))
	assert.True(t, d("25").Equal(report.Limit))
	require.Len(t, report.Daily, 2)
	assert.Equal(t, time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC), report.Daily[0].Date)
	assert.True(t, d("0.80").Equal(report.Daily[0].Total))
	assert.True(t, d("3").Equal(report.Daily[1].Total))
}
