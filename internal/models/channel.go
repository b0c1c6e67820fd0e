package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
)

// ChannelType identifies the external notification target kind.
type ChannelType string

const (
	ChannelEmail   ChannelType = "EMAIL"
	ChannelWebhook ChannelType = "WEBHOOK"
	ChannelSlack   ChannelType = "SLACK"
	ChannelTeams   ChannelType = "TEAMS"
)

// ParseChannelType converts a string to a ChannelType.
func ParseChannelType(s string) (ChannelType, error) {
	switch s {
	case "EMAIL":
		return ChannelEmail, nil
	case "WEBHOOK":
		return ChannelWebhook, nil
	case "SLACK":
		return ChannelSlack, nil
	case "TEAMS":
		return ChannelTeams, nil
	default:
		return "", errs.Validation("invalid channel type %q", s)
	}
}

// RequiresURL reports whether the channel type delivers to a URL.
func (t ChannelType) RequiresURL() bool {
	return t == ChannelWebhook || t == ChannelSlack || t == ChannelTeams
}

// AlertChannel is a configured external notification target. Configuration
// is an opaque JSON document; URL-bearing types must carry a "url" key that
// passed SSRF validation at creation time.
type AlertChannel struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Type          ChannelType `json:"type"`
	Configuration string      `json:"configuration"`
	IsActive      bool        `json:"is_active"`
	TeamID        string      `json:"team_id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// channelConfig is the decoded shape of the configuration document.
type channelConfig struct {
	URL        string `json:"url"`
	Recipients string `json:"recipients,omitempty"`
}

// URL extracts the configured URL from the channel configuration.
func (c *AlertChannel) URL() (string, error) {
	var cfg channelConfig
	if err := json.Unmarshal([]byte(c.Configuration), &cfg); err != nil {
		return "", errs.Validation("channel configuration is not valid JSON: %v", err)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return "", errs.Validation("channel configuration must contain a url")
	}
	return cfg.URL, nil
}

// Validate checks the channel's structural fields. SSRF validation of the
// configured URL happens in the dispatcher at create/update time.
func (c *AlertChannel) Validate() error {
	if c.Name == "" {
		return errs.Validation("channel name is required")
	}
	if c.TeamID == "" {
		return errs.Validation("channel team id is required")
	}
	if _, err := ParseChannelType(string(c.Type)); err != nil {
		return err
	}
	if c.Type.RequiresURL() {
		if _, err := c.URL(); err != nil {
			return err
		}
	}
	return nil
}
