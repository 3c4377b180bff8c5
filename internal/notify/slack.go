package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/renderinc/docket-monitor/internal/model"
)

const (
	slackMaxEntries = 5
	slackMaxChars   = 100
)

// Slack posts Block Kit messages to an incoming webhook
type Slack struct {
	url    string
	client *http.Client
}

// NewSlack creates a Slack notifier
func NewSlack(webhookURL string) *Slack {
	return &Slack{url: webhookURL, client: newHTTPClient()}
}

func (s *Slack) Name() string { return "slack" }

// slackBlock is a loosely typed Block Kit block
type slackBlock map[string]any

func mrkdwn(text string) map[string]string {
	return map[string]string{"type": "mrkdwn", "text": text}
}

func (s *Slack) Send(ctx context.Context, c model.Summary, entries []model.DocketEntry) error {
	return postJSON(ctx, s.client, s.url, slackPayload(c, entries), nil, http.StatusOK)
}

func slackPayload(c model.Summary, entries []model.DocketEntry) map[string]any {
	blocks := []slackBlock{
		{"type": "header", "text": map[string]string{"type": "plain_text", "text": headline()}},
		{"type": "section", "fields": []map[string]string{
			mrkdwn("*Case:*\n" + c.CaseNumber),
			mrkdwn("*Court:*\n" + strings.ToUpper(c.CourtID)),
		}},
	}
	if c.Name != "" {
		blocks = append(blocks, slackBlock{"type": "section", "text": mrkdwn("*" + c.Name + "*")})
	}

	blocks = append(blocks, slackBlock{"type": "section", "text": mrkdwn(fmt.Sprintf("*New Entries (%d):*", len(entries)))})
	for _, e := range entries[:min(len(entries), slackMaxEntries)] {
		text := fmt.Sprintf("• *Entry #%d* - %s\n  %s", e.Number, filed(e), truncate(e.Description, slackMaxChars))
		blocks = append(blocks, slackBlock{"type": "section", "text": mrkdwn(text)})
	}
	if extra := len(entries) - slackMaxEntries; extra > 0 {
		blocks = append(blocks, slackBlock{"type": "context", "elements": []map[string]string{
			mrkdwn(fmt.Sprintf("_... and %d more entries_", extra)),
		}})
	}

	blocks = append(blocks, slackBlock{"type": "actions", "elements": []map[string]any{{
		"type": "button",
		"text": map[string]string{"type": "plain_text", "text": "View on PACER"},
		"url":  c.DocketURL(),
	}}})

	return map[string]any{
		"blocks": blocks,
		"text":   "New activity in case " + c.CaseNumber,
	}
}
