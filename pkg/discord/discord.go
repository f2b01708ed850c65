// Package discord is a minimal example channel adapter: one concrete
// MessageBus producer (gateway message events become inbound envelopes) and
// consumer (outbound envelopes addressed to this channel become Discord
// messages). Channel adapters are not a core concern; this exists to show
// the bus integration point a real adapter would plug into, not to cover
// Discord's feature surface.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/crewcore/crew/pkg/bus"
	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/constants"
	"github.com/crewcore/crew/pkg/logger"
)

const (
	channelName    = "discord"
	publishTimeout = 10 * time.Second
)

// Adapter bridges one Discord bot connection to the MessageBus.
type Adapter struct {
	session   *discordgo.Session
	bus       *bus.MessageBus
	cfg       config.DiscordConfig
	botUserID string
}

// New builds an Adapter from cfg. It does not open the gateway connection;
// call Start for that.
func New(cfg config.DiscordConfig, b *bus.MessageBus) (*Adapter, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{session: session, bus: b, cfg: cfg}, nil
}

// Start opens the gateway connection and begins consuming outbound
// envelopes addressed to this channel in the background.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.handleMessageCreate)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	user, err := a.session.User("@me")
	if err != nil {
		a.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	a.botUserID = user.ID

	go a.consumeOutbound(ctx)

	logger.InfoCF("discord", "adapter connected", map[string]interface{}{"username": user.Username, "id": user.ID})
	return nil
}

// Stop closes the gateway connection.
func (a *Adapter) Stop() error {
	return a.session.Close()
}

// handleMessageCreate publishes one inbound envelope per non-bot Discord
// message.
func (a *Adapter) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == a.botUserID {
		return
	}

	content := m.Content
	if a.cfg.RequireMention && m.GuildID != "" {
		mentioned := false
		for _, u := range m.Mentions {
			if u.ID == a.botUserID {
				mentioned = true
				break
			}
		}
		if !mentioned {
			return
		}
	}
	if content == "" {
		return
	}

	sender := a.cfg.DefaultBot
	env := bus.NewEnvelope(constants.KindInbound, channelName, m.ChannelID, sender, content)
	env.Metadata = map[string]string{
		"discord_user_id":    m.Author.ID,
		"discord_message_id": m.ID,
	}

	pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := a.bus.Publish(pubCtx, env); err != nil {
		logger.WarnCF("discord", "failed to publish inbound envelope", map[string]interface{}{"error": err.Error()})
	}
}

// consumeOutbound drains outbound envelopes addressed to the discord
// channel and sends them as Discord messages.
func (a *Adapter) consumeOutbound(ctx context.Context) {
	for {
		lease, ok := a.bus.Next(ctx, constants.KindOutbound)
		if !ok {
			return
		}
		env := lease.Envelope
		if env.Channel != channelName {
			lease.Ack()
			continue
		}
		if _, err := a.session.ChannelMessageSend(env.ChatID, env.Content.Text); err != nil {
			logger.WarnCF("discord", "failed to send message", map[string]interface{}{"chat_id": env.ChatID, "error": err.Error()})
		}
		lease.Ack()
	}
}
