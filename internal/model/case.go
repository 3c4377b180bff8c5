package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPriority is returned when a priority string is not high, medium or low
var ErrInvalidPriority = errors.New("invalid priority")

// Priority is the polling tier of a monitored case
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists every tier, highest first
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority converts user input into a Priority (case-insensitive)
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q (use high, medium or low)", ErrInvalidPriority, s)
	}
}

// Rank orders priorities for display: high=0, medium=1, low=2
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Metadata holds operator-supplied attributes of a case (judge, client, matter id...)
type Metadata map[string]string

// Case is a monitored federal court case
type Case struct {
	ID                  string     // court:number, globally unique
	CourtID             string     // PACER court identifier, e.g. "nysd"
	CaseNumber          string     // docket number as shown by the court, e.g. "1:23-cv-01234"
	Name                string     // optional display name
	Priority            Priority
	LastChecked         *time.Time // nil until the first check
	LastUpdated         *time.Time // last time a check found new entries
	NotificationEnabled bool
	Metadata            Metadata
	CreatedAt           time.Time
}

// CaseID derives the registry key for a court and docket number
func CaseID(courtID, caseNumber string) string {
	return strings.ToLower(strings.TrimSpace(courtID)) + ":" + strings.TrimSpace(caseNumber)
}

// SplitCaseID is the inverse of CaseID
func SplitCaseID(id string) (courtID, caseNumber string, err error) {
	court, number, ok := strings.Cut(id, ":")
	if !ok || court == "" || number == "" {
		return "", "", fmt.Errorf("malformed case id %q (want court:number)", id)
	}
	return court, number, nil
}

// Summary is the subset of a case handed to notifiers
type Summary struct {
	ID         string
	CourtID    string
	CaseNumber string
	Name       string
}

// Summary returns the notifier-facing view of the case
func (c *Case) Summary() Summary {
	return Summary{
		ID:         c.ID,
		CourtID:    c.CourtID,
		CaseNumber: c.CaseNumber,
		Name:       c.Name,
	}
}

// DocketURL points at the court's docket report for the case
func (s Summary) DocketURL() string {
	return fmt.Sprintf("https://ecf.%s.uscourts.gov/cgi-bin/DktRpt.pl?%s", s.CourtID, s.CaseNumber)
}

// CourtURL is the court's CM/ECF landing page
func (s Summary) CourtURL() string {
	return fmt.Sprintf("https://ecf.%s.uscourts.gov", s.CourtID)
}
