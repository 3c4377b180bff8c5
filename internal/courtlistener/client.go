// Package courtlistener is a client for the free CourtListener REST API
// (RECAP archive), consulted before any metered PACER access.
package courtlistener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

const (
	DefaultBaseURL = "https://www.courtlistener.com/api/rest/v4"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 2 * time.Second
	maxEntryPages  = 10
)

// ErrNotFound means CourtListener has no docket for the court and number
var ErrNotFound = errors.New("docket not found in courtlistener")

// Client is a CourtListener API client
type Client struct {
	baseURL    string
	siteURL    string
	token      string
	httpClient *http.Client
	backoff    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff sets the initial retry backoff
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// NewClient creates a new CourtListener client. token may be empty for
// anonymous access.
func NewClient(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &Client{
		baseURL: baseURL,
		siteURL: siteOf(baseURL),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		backoff: initialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup finds the docket for court and number and loads its entries
func (c *Client) Lookup(ctx context.Context, courtID, caseNumber string) (*Docket, error) {
	q := url.Values{}
	q.Set("court", courtID)
	q.Set("docket_number", caseNumber)

	var resp docketsResponse
	if err := c.getJSON(ctx, c.baseURL+"/dockets/?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("search dockets: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%s %s: %w", courtID, caseNumber, ErrNotFound)
	}

	d := resp.Results[0]
	docket := &Docket{
		ID:           d.ID,
		CourtID:      d.Court,
		DocketNumber: d.DocketNumber,
		CaseName:     d.CaseName,
	}
	if t, err := time.Parse(time.RFC3339, d.DateModified); err == nil {
		docket.DateModified = t
	}

	entries, err := c.entries(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("docket %d entries: %w", d.ID, err)
	}
	docket.Entries = entries

	return docket, nil
}

// DocketEntries returns the entries RECAP holds for the case
func (c *Client) DocketEntries(ctx context.Context, courtID, caseNumber string) ([]model.DocketEntry, error) {
	docket, err := c.Lookup(ctx, courtID, caseNumber)
	if err != nil {
		return nil, err
	}
	return docket.Entries, nil
}

// entries follows the paginated docket-entries listing newest first, so a
// docket longer than maxEntryPages loses its oldest entries, never its
// latest filings. The result is in entry-number order.
func (c *Client) entries(ctx context.Context, docketID int) ([]model.DocketEntry, error) {
	q := url.Values{}
	q.Set("docket", strconv.Itoa(docketID))
	q.Set("order_by", "-entry_number")
	next := c.baseURL + "/docket-entries/?" + q.Encode()

	entries := []model.DocketEntry{}
	for page := 0; next != "" && page < maxEntryPages; page++ {
		var resp entriesResponse
		if err := c.getJSON(ctx, next, &resp); err != nil {
			return nil, err
		}

		for _, e := range resp.Results {
			if entry, ok := e.toEntry(c.siteURL); ok {
				entries = append(entries, entry)
			}
		}

		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}

	slices.SortFunc(entries, func(a, b model.DocketEntry) int { return a.Number - b.Number })
	return entries, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	body, err := c.fetchWithRetry(ctx, u)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// fetchWithRetry performs a GET, retrying rate limits and server errors
// with exponential backoff
func (c *Client) fetchWithRetry(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Token "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (HTTP 429)")
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		default:
			// 4xx other than 404/429 will not improve on retry
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// siteOf strips the API path, leaving scheme and host for document links
func siteOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
