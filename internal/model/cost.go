package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the kind of metered work a cost record pays for
type Action string

const (
	ActionDocketCheck   Action = "docket_check"
	ActionDocumentFetch Action = "document_fetch"
)

// CostRecord is one append-only ledger row
type CostRecord struct {
	ID        string
	CaseID    string // empty for system-level spend
	Action    Action
	Pages     int
	Cost      decimal.Decimal
	Quarter   string // YYYY-Q#, derived from CreatedAt
	CreatedAt time.Time
}

// QuarterLabel buckets t into its fiscal quarter: Q1 = Jan-Mar, Q2 = Apr-Jun, ...
func QuarterLabel(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
}

// QuarterStart returns the first instant (UTC) of the quarter containing t
func QuarterStart(t time.Time) time.Time {
	t = t.UTC()
	month := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

// DailyCost is the total spend recorded on one calendar day (UTC)
type DailyCost struct {
	Date  time.Time
	Total decimal.Decimal
}
