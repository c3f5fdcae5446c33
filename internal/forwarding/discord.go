package forwarding

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/modes"
)

//go:generate mockgen -destination=mock/mock_discord_sender.go -package=mockforwarding -source=discord.go

// DiscordSender is the part of *discordgo.Session the sink needs
type DiscordSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSinkConfig configures a DiscordSink
type DiscordSinkConfig struct {
	Sender    DiscordSender
	ChannelID string
}

// DiscordSink announces modes starting and stopping to a channel. Other
// messages are ignored.
type DiscordSink struct {
	sender    DiscordSender
	channelID string
	previous  []modes.ActiveEntry
}

// NewDiscordSink creates a DiscordSink
func NewDiscordSink(cfg *DiscordSinkConfig) (*DiscordSink, error) {
	if cfg == nil || cfg.Sender == nil {
		return nil, errors.InvalidArgumentf("discord sink requires a sender")
	}
	if cfg.ChannelID == "" {
		return nil, errors.InvalidArgumentf("discord sink requires a channel id")
	}

	return &DiscordSink{
		sender:    cfg.Sender,
		channelID: cfg.ChannelID,
	}, nil
}

// Name identifies the sink in logs
func (s *DiscordSink) Name() string {
	return "discord"
}

// Send posts an embed when the active stack gained or lost modes
func (s *DiscordSink) Send(ctx context.Context, msg *Message) error {
	if msg == nil || msg.Type != MessageTypeActiveModes {
		return nil
	}

	started, stopped := diffModes(s.previous, msg.Modes)
	s.previous = msg.Modes
	if len(started) == 0 && len(stopped) == 0 {
		return nil
	}

	_, err := s.sender.ChannelMessageSendComplex(s.channelID, &discordgo.MessageSend{
		Embed: buildModesEmbed(started, stopped, msg.Modes),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "failed to announce mode change").WithMeta("channel_id", s.channelID)
	}
	return nil
}

func diffModes(before, after []modes.ActiveEntry) (started, stopped []string) {
	was := make(map[string]bool, len(before))
	for _, e := range before {
		was[e.Name] = true
	}
	is := make(map[string]bool, len(after))
	for _, e := range after {
		is[e.Name] = true
		if !was[e.Name] {
			started = append(started, e.Name)
		}
	}
	for _, e := range before {
		if !is[e.Name] {
			stopped = append(stopped, e.Name)
		}
	}
	return started, stopped
}

func buildModesEmbed(started, stopped []string, stack []modes.ActiveEntry) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Modes changed",
		Color: 0x3498db,
	}

	if len(started) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Started",
			Value:  strings.Join(started, ", "),
			Inline: true,
		})
	}
	if len(stopped) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Stopped",
			Value:  strings.Join(stopped, ", "),
			Inline: true,
		})
	}

	lines := make([]string, 0, len(stack))
	for _, e := range stack {
		lines = append(lines, fmt.Sprintf("`%d` %s", e.Priority, e.Name))
	}
	if len(lines) == 0 {
		lines = append(lines, "_none_")
	}
	embed.Description = strings.Join(lines, "\n")

	return embed
}
