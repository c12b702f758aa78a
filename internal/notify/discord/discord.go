// Package discord implements the notify Adapter for Discord.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/torvik/sketchbridge/internal/notify"
)

// severityColors maps event severities to embed sidebar colors.
var severityColors = map[notify.Severity]int{
	notify.SeverityInfo:    0x3498db,
	notify.SeveritySuccess: 0x2ecc71,
	notify.SeverityError:   0xe74c3c,
}

// session abstracts the discordgo.Session methods we use, enabling test
// mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter delivers events to one Discord channel.
type Adapter struct {
	sess      session
	channelID string
}

// New creates a Discord adapter from a bot token and target channel.
func New(botToken, channelID string) (*Adapter, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("discord: bot token and channel id are required")
	}
	sess, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Adapter{sess: sess, channelID: channelID}, nil
}

// Name identifies the platform.
func (a *Adapter) Name() string { return "discord" }

// Send posts one event as an embed.
func (a *Adapter) Send(ctx context.Context, evt notify.Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Detail,
		Color:       severityColors[evt.Severity],
	}
	_, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}
