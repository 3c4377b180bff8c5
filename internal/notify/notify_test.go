package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/docket-monitor/internal/model"
)

var testCase = model.Summary{
	ID:         "nysd:1:23-cv-01234",
	CourtID:    "nysd",
	CaseNumber: "1:23-cv-01234",
	Name:       "Acme Corp v. Widget LLC",
}

func testEntries(n int) []model.DocketEntry {
	entries := make([]model.DocketEntry, n)
	for i := range entries {
		entries[i] = model.DocketEntry{
			CaseID:      testCase.ID,
			Number:      i + 1,
			DateFiled:   time.Date(2024, time.May, i+1, 0, 0, 0, 0, time.UTC),
			Description: "MOTION to Dismiss filed by Widget LLC",
		}
	}
	return entries
}

// captureServer records the last request body and answers with status
type captureServer struct {
	*httptest.Server
	mu      sync.Mutex
	body    []byte
	query   string
	headers http.Header
}

func newCaptureServer(t *testing.T, status int) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.body = body
		cs.query = r.URL.RawQuery
		cs.headers = r.Header.Clone()
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) decoded(t *testing.T) map[string]any {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var out map[string]any
	require.NoError(t, json.Unmarshal(cs.body, &out))
	return out
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "§§...", truncate("§§§§", 2))
}

func TestSlack_Send(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)

	err := NewSlack(srv.URL).Send(context.Background(), testCase, testEntries(7))
	require.NoError(t, err)

	body := srv.decoded(t)
	assert.Equal(t, "New activity in case 1:23-cv-01234", body["text"])

	raw, _ := json.Marshal(body["blocks"])
	blocks := string(raw)
	assert.Contains(t, blocks, "NYSD")
	assert.Contains(t, blocks, "*Acme Corp v. Widget LLC*")
	assert.Contains(t, blocks, "New Entries (7)")
	assert.Contains(t, blocks, "Entry #5")
	assert.NotContains(t, blocks, "Entry #6")
	assert.Contains(t, blocks, "and 2 more entries")
	assert.Contains(t, blocks, "DktRpt.pl?1:23-cv-01234")
}

func TestSlack_FailsOnNon200(t *testing.T) {
	srv := newCaptureServer(t, http.StatusNoContent)
	err := NewSlack(srv.URL).Send(context.Background(), testCase, testEntries(1))
	assert.Error(t, err)
}

func TestDiscord_Send(t *testing.T) {
	srv := newCaptureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL)
	d.now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, d.Send(context.Background(), testCase, testEntries(2)))

	body := srv.decoded(t)
	srv.mu.Lock()
	assert.Equal(t, "wait=true", srv.query)
	srv.mu.Unlock()
	assert.Equal(t, "PACER Monitor", body["username"])

	embed := body["embeds"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 0x0066CC, embed["color"])
	assert.Equal(t, "2024-06-01T12:00:00Z", embed["timestamp"])
	fields := embed["fields"].([]any)
	require.Len(t, fields, 4)
	assert.Equal(t, "2", fields[2].(map[string]any)["value"])
	assert.Contains(t, fields[3].(map[string]any)["value"], "**Entry #2** - 2024-05-02")
}

func TestDiscord_EmptyActivity(t *testing.T) {
	d := NewDiscord("http://unused")
	p := d.payload(testCase, nil)
	fields := p.Embeds[0].Fields
	assert.Equal(t, "No description available", fields[len(fields)-1].Value)
}

func TestTeams_Send(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)

	require.NoError(t, NewTeams(srv.URL).Send(context.Background(), model.Summary{
		ID: "cand:3:24-cv-00001", CourtID: "cand", CaseNumber: "3:24-cv-00001",
	}, testEntries(4)))

	body := srv.decoded(t)
	assert.Equal(t, "MessageCard", body["@type"])
	sections := body["sections"].([]any)
	require.Len(t, sections, 2)
	assert.Equal(t, "Federal Court Case", sections[0].(map[string]any)["activitySubtitle"])
	assert.Len(t, sections[1].(map[string]any)["facts"], 3)

	raw, _ := json.Marshal(body["potentialAction"])
	assert.Contains(t, string(raw), "https://ecf.cand.uscourts.gov")
}

func TestWebhook_SignedPayload(t *testing.T) {
	srv := newCaptureServer(t, http.StatusCreated)
	w := NewWebhook(srv.URL, "s3cret")

	entries := testEntries(3)
	entries[1].DateFiled = time.Time{}
	require.NoError(t, w.Send(context.Background(), testCase, entries))

	srv.mu.Lock()
	body, headers := srv.body, srv.headers
	srv.mu.Unlock()

	assert.Equal(t, userAgent, headers.Get("User-Agent"))
	assert.True(t, VerifySignature("s3cret", body, headers.Get(SignatureHeader)))
	assert.False(t, VerifySignature("wrong", body, headers.Get(SignatureHeader)))

	var p WebhookPayload
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "case_update", p.Event)
	assert.Equal(t, testCase.ID, p.Case.ID)
	assert.Equal(t, 3, p.Summary.TotalNewEntries)
	require.NotNil(t, p.Summary.LatestEntryDate)
	assert.True(t, p.Summary.LatestEntryDate.Equal(time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, p.Entries[1].DateFiled)
}

func TestWebhook_Unsigned(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), testCase, testEntries(1)))
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Empty(t, srv.headers.Get(SignatureHeader))
}

func TestWebhook_ServerError(t *testing.T) {
	srv := newCaptureServer(t, http.StatusInternalServerError)
	err := NewWebhook(srv.URL, "").Send(context.Background(), testCase, testEntries(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Send(context.Context, model.Summary, []model.DocketEntry) error {
	s.calls++
	return s.err
}

func TestDispatcher_IndependentChannels(t *testing.T) {
	slack := &stubNotifier{name: "slack", err: errors.New("boom")}
	discord := &stubNotifier{name: "discord"}
	d := NewDispatcher(nil, slack, discord)

	results := d.Dispatch(context.Background(), testCase, testEntries(1))
	require.Len(t, results, 2)
	assert.False(t, results[0].OK())
	assert.True(t, results[1].OK())
	assert.Equal(t, 1, discord.calls)

	err := d.Deliver(context.Background(), testCase, testEntries(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: boom")
	assert.Equal(t, 2, slack.calls, "failures are not retried")
}

func TestDispatcher_NoChannels(t *testing.T) {
	d := NewDispatcher(nil)
	assert.Empty(t, d.Dispatch(context.Background(), testCase, testEntries(1)))
	assert.NoError(t, d.Deliver(context.Background(), testCase, testEntries(1)))
}

func TestEmail_Message(t *testing.T) {
	e := NewEmail(EmailSettings{From: "monitor@example.com", To: []string{"a@example.com", "b@example.com"}})
	e.now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }

	entries := testEntries(12)
	entries[0].Description = "<script>alert(1)</script>"
	msg, err := e.message(testCase, entries)
	require.NoError(t, err)
	text := string(msg)

	assert.Contains(t, text, "From: monitor@example.com\r\n")
	assert.Contains(t, text, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, text, "Subject: PACER Alert: New activity in 1:23-cv-01234\r\n")
	assert.Contains(t, text, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, text, "New Docket Entries (12)")
	assert.Contains(t, text, "... and 2 more entries")
	assert.Contains(t, text, "&lt;script&gt;")
	assert.NotContains(t, text, "<script>")
	assert.Equal(t, 10, strings.Count(text, "border-bottom: 1px solid #ddd;\">2024-05-"))
}

// fakeSMTP accepts one session without STARTTLS or AUTH and captures DATA
func fakeSMTP(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		write("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				write("250-localhost")
				write("250 8BITMIME")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				write("250 OK")
			case cmd == "DATA":
				write("354 go ahead")
				var b strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					b.WriteString(l)
				}
				out <- b.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("250 OK")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestEmail_Send(t *testing.T) {
	addr, data := fakeSMTP(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	e := NewEmail(EmailSettings{Host: host, Port: portNum, From: "monitor@example.com", To: []string{"ops@example.com"}})
	require.NoError(t, e.Send(context.Background(), testCase, testEntries(1)))

	select {
	case got := <-data:
		assert.Contains(t, got, "Subject: PACER Alert: New activity in 1:23-cv-01234")
		assert.Contains(t, got, "MOTION to Dismiss")
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
