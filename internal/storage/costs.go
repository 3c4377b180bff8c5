package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renderinc/docket-monitor/internal/model"
)

// InsertCost appends a cost record. The caller supplies ID, Quarter and CreatedAt.
func (d *DB) InsertCost(ctx context.Context, rec *model.CostRecord) error {
	var caseID sql.NullString
	if rec.CaseID != "" {
		caseID = sql.NullString{String: rec.CaseID, Valid: true}
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO cost_records (id, case_id, action, pages, cost, quarter, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, caseID, string(rec.Action), rec.Pages, rec.Cost.String(), rec.Quarter, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

const costColumns = "id, case_id, action, pages, cost, quarter, created_at"

// CostsByQuarter returns every raw record labelled with quarter
func (d *DB) CostsByQuarter(ctx context.Context, quarter string) ([]model.CostRecord, error) {
	return d.queryCosts(ctx,
		"SELECT "+costColumns+" FROM cost_records WHERE quarter = ? ORDER BY created_at", quarter)
}

// CostsSince returns records created at or after since, oldest first
func (d *DB) CostsSince(ctx context.Context, since time.Time) ([]model.CostRecord, error) {
	return d.queryCosts(ctx,
		"SELECT "+costColumns+" FROM cost_records WHERE created_at >= ? ORDER BY created_at", formatTime(since))
}

// SumCostsByQuarter totals the raw records of one quarter
func (d *DB) SumCostsByQuarter(ctx context.Context, quarter string) (decimal.Decimal, error) {
	recs, err := d.CostsByQuarter(ctx, quarter)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Cost)
	}
	return total, nil
}

// CountCostsSince counts paid actions recorded at or after since
func (d *DB) CountCostsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cost_records WHERE created_at >= ?", formatTime(since)).Scan(&n)
	return n, err
}

func (d *DB) queryCosts(ctx context.Context, query string, args ...any) ([]model.CostRecord, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost records: %w", err)
	}
	defer rows.Close()

	recs := []model.CostRecord{}
	for rows.Next() {
		var (
			r         model.CostRecord
			caseID    sql.NullString
			action    string
			cost      string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &caseID, &action, &r.Pages, &cost, &r.Quarter, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		r.CaseID = caseID.String
		r.Action = model.Action(action)
		if r.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parse cost %q: %w", cost, err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
