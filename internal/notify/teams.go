package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/renderinc/docket-monitor/internal/model"
)

const (
	teamsMaxEntries = 3
	teamsMaxChars   = 50
)

// Teams posts a MessageCard to an Office 365 connector webhook
type Teams struct {
	url    string
	client *http.Client
}

// NewTeams creates a Teams notifier
func NewTeams(webhookURL string) *Teams {
	return &Teams{url: webhookURL, client: newHTTPClient()}
}

func (t *Teams) Name() string { return "teams" }

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	Title            string      `json:"title,omitempty"`
	Facts            []teamsFact `json:"facts"`
}

func (t *Teams) Send(ctx context.Context, c model.Summary, entries []model.DocketEntry) error {
	return postJSON(ctx, t.client, t.url, teamsCard(c, entries), nil, http.StatusOK)
}

func teamsCard(c model.Summary, entries []model.DocketEntry) map[string]any {
	subtitle := c.Name
	if subtitle == "" {
		subtitle = "Federal Court Case"
	}

	recent := teamsSection{Title: "Recent Docket Entries", Facts: []teamsFact{}}
	for _, e := range entries[:min(len(entries), teamsMaxEntries)] {
		recent.Facts = append(recent.Facts, teamsFact{
			Name:  fmt.Sprintf("Entry #%d", e.Number),
			Value: filed(e) + " - " + truncate(e.Description, teamsMaxChars),
		})
	}

	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "0066CC",
		"summary":    "New activity in case " + c.CaseNumber,
		"sections": []teamsSection{
			{
				ActivityTitle:    headline(),
				ActivitySubtitle: subtitle,
				Facts: []teamsFact{
					{Name: "Case Number:", Value: c.CaseNumber},
					{Name: "Court:", Value: strings.ToUpper(c.CourtID)},
					{Name: "New Entries:", Value: strconv.Itoa(len(entries))},
				},
			},
			recent,
		},
		"potentialAction": []map[string]any{{
			"@type":   "OpenUri",
			"name":    "View on PACER",
			"targets": []map[string]string{{"os": "default", "uri": c.CourtURL()}},
		}},
	}
}
