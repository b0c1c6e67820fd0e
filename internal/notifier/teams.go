package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/logtrap/internal/models"
)

// TeamsNotifier sends alerts to Microsoft Teams via incoming webhook.
type TeamsNotifier struct {
	httpClient *http.Client
}

// NewTeamsNotifier creates a Teams notifier.
func NewTeamsNotifier(client *http.Client) *TeamsNotifier {
	return &TeamsNotifier{httpClient: client}
}

// Type returns TEAMS.
func (t *TeamsNotifier) Type() models.ChannelType {
	return models.ChannelTeams
}

// Send posts an Adaptive Card message to the channel's webhook URL.
func (t *TeamsNotifier) Send(ctx context.Context, ch *models.AlertChannel, n *Notification) error {
	url, err := ch.URL()
	if err != nil {
		return err
	}
	return postJSON(ctx, t.httpClient, url, t.buildPayload(n), "teams")
}

// teamsMessage wraps an Adaptive Card for the Teams webhook format.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string    `json:"contentType"`
	Content     teamsCard `json:"content"`
}

type teamsCard struct {
	Type    string        `json:"type"`
	Version string        `json:"version"`
	Body    []interface{} `json:"body"`
}

type teamsTextBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type teamsFactSet struct {
	Type  string      `json:"type"`
	Facts []teamsFact `json:"facts"`
}

type teamsFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// buildPayload builds the Adaptive Card payload.
func (t *TeamsNotifier) buildPayload(n *Notification) teamsMessage {
	title := n.TrapName
	if title == "" {
		title = n.TrapID
	}

	body := []interface{}{
		teamsTextBlock{
			Type:   "TextBlock",
			Text:   fmt.Sprintf("Alert: %s", title),
			Size:   "Large",
			Weight: "Bolder",
			Color:  severityColor(n.Severity),
			Wrap:   true,
		},
		teamsTextBlock{
			Type: "TextBlock",
			Text: n.Message,
			Wrap: true,
		},
		teamsFactSet{
			Type: "FactSet",
			Facts: []teamsFact{
				{Title: "Severity", Value: strings.ToUpper(string(n.Severity))},
				{Title: "Fired", Value: n.FiredAt.Format("2006-01-02 15:04:05 MST")},
				{Title: "Alert ID", Value: n.AlertID},
				{Title: "Rule ID", Value: n.RuleID},
			},
		},
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: teamsCard{
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// severityColor maps severity to an Adaptive Card text color.
func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "Attention"
	case models.SeverityWarning:
		return "Warning"
	default:
		return "Accent"
	}
}
