package registry

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/docket-monitor/internal/model"
	"github.com/renderinc/docket-monitor/internal/storage"
)

var testIntervals = map[model.Priority]time.Duration{
	model.PriorityHigh:   time.Hour,
	model.PriorityMedium: 6 * time.Hour,
	model.PriorityLow:    24 * time.Hour,
}

func newTestRegistry(t *testing.T, seed uint64) (*Registry, *storage.DB) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, testIntervals, 0.10, WithRand(rand.New(rand.NewPCG(seed, seed+1)))), db
}

func TestUpsert_ValidatesAndNormalizes(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	c := &model.Case{CourtID: " NYSD ", CaseNumber: "1:23-cv-01234 ", Priority: "High"}
	created, err := reg.Upsert(ctx, c)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "nysd:1:23-cv-01234", c.ID)
	assert.Equal(t, model.PriorityHigh, c.Priority)

	_, err = reg.Upsert(ctx, &model.Case{CourtID: "nysd", CaseNumber: "2", Priority: "urgent"})
	assert.ErrorIs(t, err, model.ErrInvalidPriority)

	_, err = reg.Upsert(ctx, &model.Case{CourtID: "", CaseNumber: "2", Priority: "low"})
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestUpsert_PriorityChangeKeepsLastChecked(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := reg.Upsert(ctx, &model.Case{CourtID: "cand", CaseNumber: "3:24-cv-1", Priority: model.PriorityLow})
	require.NoError(t, err)
	require.NoError(t, reg.MarkChecked(ctx, "cand:3:24-cv-1", now))

	created, err := reg.Upsert(ctx, &model.Case{CourtID: "cand", CaseNumber: "3:24-cv-1", Priority: model.PriorityHigh})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := reg.Get(ctx, "cand:3:24-cv-1")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	require.NotNil(t, got.LastChecked)
	assert.True(t, now.Equal(*got.LastChecked))
}

func TestListDue_NeverCheckedIsDue(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, &model.Case{CourtID: "ded", CaseNumber: "1", Priority: model.PriorityLow})
	require.NoError(t, err)

	due, err := reg.ListDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ded:1", due[0].ID)
}

func TestIsDue_JitterLowerBound(t *testing.T) {
	reg, _ := newTestRegistry(t, 42)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, p := range model.Priorities {
		interval := testIntervals[p]
		for _, frac := range []float64{0, 0.1, 0.5, 0.85, 0.9} {
			last := now.Add(-time.Duration(float64(interval) * frac))
			c := &model.Case{ID: "x:1", Priority: p, LastChecked: &last}
			for i := 0; i < 500; i++ {
				assert.False(t, reg.IsDue(c, now), "%s checked %.2f of interval ago", p, frac)
			}
		}
	}
}

func TestIsDue_AlwaysDuePastUpperBound(t *testing.T) {
	reg, _ := newTestRegistry(t, 7)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	last := now.Add(-(time.Hour * 111 / 100))
	c := &model.Case{ID: "x:1", Priority: model.PriorityHigh, LastChecked: &last}
	for i := 0; i < 500; i++ {
		assert.True(t, reg.IsDue(c, now))
	}
}

func TestEffectiveInterval_WithinBounds(t *testing.T) {
	reg, _ := newTestRegistry(t, 99)

	lo := time.Duration(float64(6*time.Hour) * 0.9)
	hi := time.Duration(float64(6*time.Hour) * 1.1)
	seen := map[time.Duration]bool{}
	for i := 0; i < 1000; i++ {
		d := reg.EffectiveInterval(model.PriorityMedium)
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1, "jitter is recomputed on every evaluation")
}

func TestEffectiveInterval_NoJitter(t *testing.T) {
	reg := New(nil, testIntervals, 0)
	assert.Equal(t, time.Hour, reg.EffectiveInterval(model.PriorityHigh))
}

func TestForceCheck_MakesCaseDue(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := reg.Upsert(ctx, &model.Case{CourtID: "ilnd", CaseNumber: "1", Priority: model.PriorityLow})
	require.NoError(t, err)
	require.NoError(t, reg.MarkChecked(ctx, "ilnd:1", now))

	due, err := reg.ListDue(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, reg.ForceCheck(ctx, "ilnd:1"))
	due, err = reg.ListDue(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestForceCheck_UnknownCase(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	err := reg.ForceCheck(context.Background(), "nope:1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetNotifications(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, &model.Case{CourtID: "txsd", CaseNumber: "4", Priority: model.PriorityMedium})
	require.NoError(t, err)
	require.NoError(t, reg.SetNotifications(ctx, "txsd:4", false))

	got, err := reg.Get(ctx, "txsd:4")
	require.NoError(t, err)
	assert.False(t, got.NotificationEnabled)
}
