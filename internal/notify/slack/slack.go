// Package slack implements the notify Adapter for Slack.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/torvik/sketchbridge/internal/notify"
)

// severityColors maps event severities to attachment sidebar colors.
var severityColors = map[notify.Severity]string{
	notify.SeverityInfo:    "#3498db",
	notify.SeveritySuccess: "#36a64f",
	notify.SeverityError:   "#e01e5a",
}

// poster abstracts the slack client method we use, enabling test mocks.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Adapter delivers events to one Slack channel.
type Adapter struct {
	client    poster
	channelID string
}

// New creates a Slack adapter from a bot token and target channel.
func New(botToken, channelID string) (*Adapter, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("slack: bot token and channel id are required")
	}
	return &Adapter{client: slack.New(botToken), channelID: channelID}, nil
}

// Name identifies the platform.
func (a *Adapter) Name() string { return "slack" }

// Send posts one event as an attachment.
func (a *Adapter) Send(ctx context.Context, evt notify.Event) error {
	attachment := slack.Attachment{
		Title: evt.Title,
		Text:  evt.Detail,
		Color: severityColors[evt.Severity],
	}
	_, _, err := a.client.PostMessageContext(ctx, a.channelID, slack.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
