// Package pacer talks to the docket scraper sidecar that performs the
// authenticated, metered PACER docket-report fetch. The sidecar owns login
// and HTML parsing; this client only sees structured entries and the billed
// page count.
package pacer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

// Client is a scraper sidecar client
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a new scraper client. PACER credentials travel as
// HTTP basic auth on every request.
func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// docketRequest represents a docket report request
type docketRequest struct {
	CourtID    string `json:"court_id"`
	CaseNumber string `json:"case_number"`
}

// docketResponse represents the sidecar's parsed docket report
type docketResponse struct {
	Entries   []entryJSON `json:"entries"`
	PageCount int         `json:"page_count"`
	Error     string      `json:"error,omitempty"`
}

type entryJSON struct {
	EntryNumber flexInt `json:"entry_number"`
	DateFiled   string  `json:"date_filed"`
	Description string  `json:"description"`
	DocumentURL string  `json:"document_url"`
}

// flexInt accepts 12 or "12"; docket numbers scraped from HTML arrive as
// text. Minute entries carry null, "" or a placeholder and decode as
// not Valid rather than failing the whole report.
type flexInt struct {
	N     int
	Valid bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(b)), `"`))
	n, err := strconv.Atoi(s)
	*f = flexInt{N: n, Valid: err == nil}
	return nil
}

// FetchDocket runs a docket report and returns its entries and the number
// of billable pages. A report always bills at least one page.
func (c *Client) FetchDocket(ctx context.Context, courtID, caseNumber string) ([]model.DocketEntry, int, error) {
	jsonData, err := json.Marshal(docketRequest{CourtID: courtID, CaseNumber: caseNumber})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/docket-report", bytes.NewReader(jsonData))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	var dr docketResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &dr) == nil && dr.Error != "" {
			return nil, 0, fmt.Errorf("scraper error (HTTP %d): %s", resp.StatusCode, dr.Error)
		}
		return nil, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, 0, fmt.Errorf("unmarshal response: %w", err)
	}

	entries := make([]model.DocketEntry, 0, len(dr.Entries))
	for _, e := range dr.Entries {
		// Unnumbered minute entries cannot be tracked; the rest of the paid
		// report is still usable.
		if !e.EntryNumber.Valid {
			continue
		}
		entries = append(entries, model.DocketEntry{
			Number:      e.EntryNumber.N,
			DateFiled:   parseFiled(e.DateFiled),
			Description: strings.TrimSpace(e.Description),
			DocumentURL: e.DocumentURL,
		})
	}

	pages := dr.PageCount
	if pages < 1 {
		pages = 1
	}
	return entries, pages, nil
}

var filedLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

// parseFiled returns the zero time when the date is missing or unrecognised
func parseFiled(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range filedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
