package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body
const SignatureHeader = "X-Signature"

// Webhook posts the full update to an arbitrary endpoint, optionally signed
type Webhook struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
}

// NewWebhook creates a generic webhook notifier. An empty secret disables
// signing.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{url: url, secret: secret, client: newHTTPClient(), now: time.Now}
}

func (w *Webhook) Name() string { return "webhook" }

// WebhookPayload is the body of a case_update event
type WebhookPayload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Case      WebhookCase    `json:"case"`
	Entries   []WebhookEntry `json:"entries"`
	Summary   WebhookSummary `json:"summary"`
}

type WebhookCase struct {
	ID      string `json:"id"`
	Number  string `json:"number"`
	CourtID string `json:"court_id"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url"`
}

type WebhookEntry struct {
	Number      int        `json:"number"`
	DateFiled   *time.Time `json:"date_filed"`
	Description string     `json:"description"`
	DocumentURL string     `json:"document_url,omitempty"`
}

type WebhookSummary struct {
	TotalNewEntries int        `json:"total_new_entries"`
	LatestEntryDate *time.Time `json:"latest_entry_date"`
}

func (w *Webhook) Send(ctx context.Context, c model.Summary, entries []model.DocketEntry) error {
	body, err := json.Marshal(w.payload(c, entries))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	headers := map[string]string{"User-Agent": userAgent}
	if w.secret != "" {
		headers[SignatureHeader] = Sign(w.secret, body)
	}
	return postRaw(ctx, w.client, w.url, body, headers,
		http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent)
}

func (w *Webhook) payload(c model.Summary, entries []model.DocketEntry) WebhookPayload {
	p := WebhookPayload{
		Event:     "case_update",
		Timestamp: w.now().UTC(),
		Case: WebhookCase{
			ID:      c.ID,
			Number:  c.CaseNumber,
			CourtID: c.CourtID,
			Name:    c.Name,
			URL:     c.CourtURL(),
		},
		Entries: make([]WebhookEntry, 0, len(entries)),
		Summary: WebhookSummary{TotalNewEntries: len(entries)},
	}

	for _, e := range entries {
		we := WebhookEntry{
			Number:      e.Number,
			Description: e.Description,
			DocumentURL: e.DocumentURL,
		}
		if !e.DateFiled.IsZero() {
			d := e.DateFiled
			we.DateFiled = &d
			if p.Summary.LatestEntryDate == nil || d.After(*p.Summary.LatestEntryDate) {
				p.Summary.LatestEntryDate = &d
			}
		}
		p.Entries = append(p.Entries, we)
	}
	return p
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Signature value in constant time
func VerifySignature(secret string, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
