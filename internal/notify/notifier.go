// Package notify delivers new docket entries to chat platforms, webhooks
// and email.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/renderinc/docket-monitor/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "PACER-Monitor/1.0"
)

// Notifier sends one case's new entries to a single channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, c model.Summary, entries []model.DocketEntry) error
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// postJSON sends body as JSON and fails unless the status is one of ok
func postJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, ok ...int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return postRaw(ctx, client, url, data, headers, ok...)
}

func postRaw(ctx context.Context, client *http.Client, url string, data []byte, headers map[string]string, ok ...int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if !slices.Contains(ok, resp.StatusCode) {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// truncate shortens s to n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}

func filed(e model.DocketEntry) string {
	if e.DateFiled.IsZero() {
		return "date unknown"
	}
	return e.DateFiled.Format(time.DateOnly)
}

func headline() string {
	return "⚖️ New Court Activity"
}
