package model

import "time"

// DocketEntry is one filing on a case docket. (CaseID, Number) is unique.
type DocketEntry struct {
	CaseID      string
	Number      int
	DateFiled   time.Time
	Description string
	DocumentURL string // empty when the entry has no document
	FirstSeen   time.Time
}
