package courtlistener

import (
	"strings"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

// Docket is a RECAP docket with the entries CourtListener holds for it
type Docket struct {
	ID           int
	CourtID      string
	DocketNumber string
	CaseName     string
	DateModified time.Time
	Entries      []model.DocketEntry
}

// docketsResponse represents the API response for /dockets/
type docketsResponse struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []docketJSON `json:"results"`
}

type docketJSON struct {
	ID           int    `json:"id"`
	Court        string `json:"court_id"`
	DocketNumber string `json:"docket_number"`
	CaseName     string `json:"case_name"`
	DateModified string `json:"date_modified"`
}

// entriesResponse represents the API response for /docket-entries/
type entriesResponse struct {
	Next    *string     `json:"next"`
	Results []entryJSON `json:"results"`
}

type entryJSON struct {
	EntryNumber    *int    `json:"entry_number"`
	DateFiled      *string `json:"date_filed"`
	Description    string  `json:"description"`
	RecapDocuments []struct {
		Description   string `json:"description"`
		AbsoluteURL   string `json:"absolute_url"`
		FilepathLocal string `json:"filepath_local"`
		IsAvailable   bool   `json:"is_available"`
	} `json:"recap_documents"`
}

// toEntry converts an API entry; ok is false for unnumbered minute entries
func (e entryJSON) toEntry(baseSite string) (model.DocketEntry, bool) {
	if e.EntryNumber == nil {
		return model.DocketEntry{}, false
	}

	entry := model.DocketEntry{
		Number:      *e.EntryNumber,
		Description: strings.TrimSpace(e.Description),
	}
	if e.DateFiled != nil {
		if t, err := time.Parse("2006-01-02", *e.DateFiled); err == nil {
			entry.DateFiled = t
		}
	}

	if len(e.RecapDocuments) > 0 {
		doc := e.RecapDocuments[0]
		if entry.Description == "" {
			entry.Description = strings.TrimSpace(doc.Description)
		}
		if doc.AbsoluteURL != "" {
			entry.DocumentURL = baseSite + doc.AbsoluteURL
		}
	}
	return entry, true
}
