package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/logtrap/internal/models"
)

// SlackNotifier sends alerts to Slack via incoming webhook.
type SlackNotifier struct {
	httpClient *http.Client
}

// NewSlackNotifier creates a Slack notifier.
func NewSlackNotifier(client *http.Client) *SlackNotifier {
	return &SlackNotifier{httpClient: client}
}

// Type returns SLACK.
func (s *SlackNotifier) Type() models.ChannelType {
	return models.ChannelSlack
}

// Send posts a Block Kit message to the channel's webhook URL.
func (s *SlackNotifier) Send(ctx context.Context, ch *models.AlertChannel, n *Notification) error {
	url, err := ch.URL()
	if err != nil {
		return err
	}
	return postJSON(ctx, s.httpClient, url, s.buildPayload(n), "slack")
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// buildPayload builds the Slack Block Kit message payload.
func (s *SlackNotifier) buildPayload(n *Notification) slackMessage {
	emoji := severityEmoji(n.Severity)
	timestamp := n.FiredAt.Format("2006-01-02 15:04:05 MST")

	title := n.TrapName
	if title == "" {
		title = n.TrapID
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  fmt.Sprintf("%s Alert: %s", emoji, title),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Severity:*\n%s %s", emoji, strings.ToUpper(string(n.Severity))),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Fired:*\n%s", timestamp),
				},
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Message:*\n%s", n.Message),
			},
		},
		{
			Type: "context",
			Elements: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("Alert `%s` | Rule `%s`", n.AlertID, n.RuleID),
				},
			},
		},
	}

	return slackMessage{Blocks: blocks}
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "\U0001F534" // red circle
	case models.SeverityWarning:
		return "\U0001F7E1" // yellow circle
	case models.SeverityInfo:
		return "\U0001F535" // blue circle
	default:
		return "⚪" // white circle
	}
}
