package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/docket-monitor/internal/model"
)

func costAt(id string, amount string, at time.Time) *model.CostRecord {
	return &model.CostRecord{
		ID:        id,
		CaseID:    "nysd:1",
		Action:    model.ActionDocketCheck,
		Pages:     5,
		Cost:      decimal.RequireFromString(amount),
		Quarter:   model.QuarterLabel(at),
		CreatedAt: at,
	}
}

func TestInsertCost_SumByQuarter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	q1 := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	q2 := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertCost(ctx, costAt("a", "0.50", q1)))
	require.NoError(t, db.InsertCost(ctx, costAt("b", "1.20", q1)))
	require.NoError(t, db.InsertCost(ctx, costAt("c", "3.00", q2)))

	sum, err := db.SumCostsByQuarter(ctx, "2024-Q1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.70").Equal(sum), sum.String())

	sum, err = db.SumCostsByQuarter(ctx, "2024-Q3")
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestInsertCost_SystemLevel(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := costAt("sys", "0.10", time.Now())
	rec.CaseID = ""
	rec.Action = model.ActionDocumentFetch
	require.NoError(t, db.InsertCost(ctx, rec))

	recs, err := db.CostsByQuarter(ctx, rec.Quarter)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].CaseID)
	assert.Equal(t, model.ActionDocumentFetch, recs[0].Action)
	assert.Equal(t, 5, recs[0].Pages)
}

func TestInsertCost_DuplicateIDFails(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, db.InsertCost(ctx, costAt("dup", "0.10", now)))
	assert.Error(t, db.InsertCost(ctx, costAt("dup", "0.10", now)))
}

func TestCostsSince_AndCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertCost(ctx, costAt("1", "0.30", base.Add(-48*time.Hour))))
	require.NoError(t, db.InsertCost(ctx, costAt("2", "0.40", base)))
	require.NoError(t, db.InsertCost(ctx, costAt("3", "0.50", base.Add(time.Hour))))

	recs, err := db.CostsSince(ctx, base)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2", recs[0].ID)
	assert.True(t, base.Equal(recs[0].CreatedAt))

	n, err := db.CountCostsSince(ctx, base.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
