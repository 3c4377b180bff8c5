package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

const (
	discordMaxEntries = 5
	discordMaxChars   = 75
	discordColor      = 0x0066CC
)

// Discord posts an embed to a Discord webhook
type Discord struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewDiscord creates a Discord notifier
func NewDiscord(webhookURL string) *Discord {
	return &Discord{url: webhookURL, client: newHTTPClient(), now: time.Now}
}

func (d *Discord) Name() string { return "discord" }

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Timestamp   string         `json:"timestamp"`
}

type discordPayload struct {
	Embeds   []discordEmbed `json:"embeds"`
	Username string         `json:"username"`
}

func (d *Discord) Send(ctx context.Context, c model.Summary, entries []model.DocketEntry) error {
	url := d.url
	if strings.Contains(url, "?") {
		url += "&wait=true"
	} else {
		url += "?wait=true"
	}
	return postJSON(ctx, d.client, url, d.payload(c, entries), nil, http.StatusOK, http.StatusNoContent)
}

func (d *Discord) payload(c model.Summary, entries []model.DocketEntry) discordPayload {
	embed := discordEmbed{
		Title: headline(),
		Color: discordColor,
		Fields: []discordField{
			{Name: "Case Number", Value: c.CaseNumber, Inline: true},
			{Name: "Court", Value: strings.ToUpper(c.CourtID), Inline: true},
			{Name: "New Entries", Value: strconv.Itoa(len(entries)), Inline: true},
		},
		Timestamp: d.now().UTC().Format(time.RFC3339),
	}
	if c.Name != "" {
		embed.Description = "**" + c.Name + "**"
	}

	var b strings.Builder
	for _, e := range entries[:min(len(entries), discordMaxEntries)] {
		fmt.Fprintf(&b, "**Entry #%d** - %s\n%s\n\n", e.Number, filed(e), truncate(e.Description, discordMaxChars))
	}
	if extra := len(entries) - discordMaxEntries; extra > 0 {
		fmt.Fprintf(&b, "_... and %d more entries_", extra)
	}
	activity := strings.TrimSpace(b.String())
	if activity == "" {
		activity = "No description available"
	}
	embed.Fields = append(embed.Fields, discordField{Name: "Recent Activity", Value: activity})

	return discordPayload{Embeds: []discordEmbed{embed}, Username: "PACER Monitor"}
}
