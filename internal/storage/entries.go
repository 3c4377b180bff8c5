package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

// MergeEntries persists the candidates not already stored for the case and
// returns them in the order supplied. Entries are keyed by (case, entry number);
// a number repeated inside candidates keeps its first occurrence. The whole
// merge is one transaction and merges for the same case never interleave.
func (d *DB) MergeEntries(ctx context.Context, caseID string, candidates []model.DocketEntry, seen time.Time) ([]model.DocketEntry, error) {
	if len(candidates) == 0 {
		return []model.DocketEntry{}, nil
	}

	unlock := d.lockCase(caseID)
	defer unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO docket_entries (case_id, entry_number, date_filed, description, document_url, first_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, entry_number) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	fresh := []model.DocketEntry{}
	for _, e := range candidates {
		var dateFiled sql.NullString
		if !e.DateFiled.IsZero() {
			dateFiled = sql.NullString{String: formatTime(e.DateFiled), Valid: true}
		}

		res, err := stmt.ExecContext(ctx, caseID, e.Number, dateFiled, e.Description, e.DocumentURL, formatTime(seen))
		if err != nil {
			return nil, fmt.Errorf("insert entry %d: %w", e.Number, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue // already known
		}

		e.CaseID = caseID
		e.FirstSeen = seen.UTC()
		fresh = append(fresh, e)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	return fresh, nil
}

const entryColumns = "case_id, entry_number, date_filed, description, document_url, first_seen"

// ListEntries returns a case's docket in entry-number order
func (d *DB) ListEntries(ctx context.Context, caseID string) ([]model.DocketEntry, error) {
	return d.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM docket_entries WHERE case_id = ? ORDER BY entry_number", caseID)
}

// AllEntries returns every stored entry (used to rebuild the search index)
func (d *DB) AllEntries(ctx context.Context) ([]model.DocketEntry, error) {
	return d.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM docket_entries ORDER BY case_id, entry_number")
}

// RecentEntries returns the most recently observed entries across all cases
func (d *DB) RecentEntries(ctx context.Context, limit int) ([]model.DocketEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return d.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM docket_entries ORDER BY first_seen DESC, entry_number DESC LIMIT ?", limit)
}

// CountEntries returns the number of stored entries for a case
func (d *DB) CountEntries(ctx context.Context, caseID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM docket_entries WHERE case_id = ?", caseID).Scan(&n)
	return n, err
}

// CountEntriesSince counts entries first observed at or after since
func (d *DB) CountEntriesSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM docket_entries WHERE first_seen >= ?", formatTime(since)).Scan(&n)
	return n, err
}

func (d *DB) queryEntries(ctx context.Context, query string, args ...any) ([]model.DocketEntry, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []model.DocketEntry{}
	for rows.Next() {
		var (
			e         model.DocketEntry
			dateFiled sql.NullString
			firstSeen string
		)
		if err := rows.Scan(&e.CaseID, &e.Number, &dateFiled, &e.Description, &e.DocumentURL, &firstSeen); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if df, err := parseNullTime(dateFiled); err == nil && df != nil {
			e.DateFiled = *df
		}
		if e.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
