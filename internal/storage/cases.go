package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

const caseColumns = `id, court_id, case_number, case_name, priority, last_checked,
	last_updated, notification_enabled, metadata, created_at`

// UpsertCase creates the case if absent (null last_checked, notifications on).
// For an existing case only the priority changes; last_checked is kept so a
// routine priority edit does not trigger an immediate re-poll.
// Returns true when a new row was created.
func (d *DB) UpsertCase(ctx context.Context, c *model.Case) (bool, error) {
	if c.ID == "" {
		c.ID = model.CaseID(c.CourtID, c.CaseNumber)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases WHERE id = ?", c.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup case: %w", err)
	}

	if exists > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE cases SET priority = ? WHERE id = ?", string(c.Priority), c.ID,
		); err != nil {
			return false, fmt.Errorf("update priority: %w", err)
		}
		return false, tx.Commit()
	}

	meta := c.Metadata
	if meta == nil {
		meta = model.Metadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.NotificationEnabled = true
	c.LastChecked = nil

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cases (id, court_id, case_number, case_name, priority,
			last_checked, last_updated, notification_enabled, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, 1, ?, ?)`,
		c.ID, c.CourtID, c.CaseNumber, c.Name, string(c.Priority),
		string(metaJSON), formatTime(c.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert case: %w", err)
	}

	return true, tx.Commit()
}

// GetCase retrieves a case by ID
func (d *DB) GetCase(ctx context.Context, id string) (*model.Case, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+caseColumns+" FROM cases WHERE id = ?", id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

// ListCases returns every case, high priority first
func (d *DB) ListCases(ctx context.Context) ([]*model.Case, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+caseColumns+` FROM cases
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, id`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	cases := []*model.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// CountCases returns the number of registered cases
func (d *DB) CountCases(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases").Scan(&n)
	return n, err
}

// MarkChecked sets last_checked. Idempotent.
func (d *DB) MarkChecked(ctx context.Context, id string, when time.Time) error {
	return d.updateCase(ctx, id, "UPDATE cases SET last_checked = ? WHERE id = ?", formatTime(when), id)
}

// ClearLastChecked makes the case due on the next cycle
func (d *DB) ClearLastChecked(ctx context.Context, id string) error {
	return d.updateCase(ctx, id, "UPDATE cases SET last_checked = NULL WHERE id = ?", id)
}

// TouchUpdated records that new entries were found at when
func (d *DB) TouchUpdated(ctx context.Context, id string, when time.Time) error {
	return d.updateCase(ctx, id, "UPDATE cases SET last_updated = ? WHERE id = ?", formatTime(when), id)
}

// SetNotifications enables or disables notifications for a case
func (d *DB) SetNotifications(ctx context.Context, id string, enabled bool) error {
	return d.updateCase(ctx, id, "UPDATE cases SET notification_enabled = ? WHERE id = ?", enabled, id)
}

func (d *DB) updateCase(ctx context.Context, id, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update case %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*model.Case, error) {
	var (
		c           model.Case
		priority    string
		lastChecked sql.NullString
		lastUpdated sql.NullString
		metaJSON    string
		createdAt   string
	)
	if err := row.Scan(
		&c.ID, &c.CourtID, &c.CaseNumber, &c.Name, &priority, &lastChecked,
		&lastUpdated, &c.NotificationEnabled, &metaJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	c.Priority = model.Priority(priority)

	var err error
	if c.LastChecked, err = parseNullTime(lastChecked); err != nil {
		return nil, err
	}
	if c.LastUpdated, err = parseNullTime(lastUpdated); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	c.Metadata = model.Metadata{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", c.ID, err)
		}
	}

	return &c, nil
}
