package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rahul/scout/internal/observability"
)

const (
	discordMaxMessage = 2000
	discordPrefix     = "!scout"
)

// DiscordGateway answers direct messages, and guild messages that start
// with !scout or mention the bot.
type DiscordGateway struct {
	Session *discordgo.Session
	Agent   Agent
	Logger  *observability.Logger
}

func NewDiscordGateway(token string, a Agent, logger *observability.Logger) (*DiscordGateway, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &DiscordGateway{Session: dg, Agent: a, Logger: logger}, nil
}

func (d *DiscordGateway) Start(ctx context.Context) error {
	d.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || s.State == nil || s.State.User == nil {
			return
		}
		query, ok := discordQuery(m.Content, m.GuildID, m.Author.ID, s.State.User.ID)
		if !ok {
			return
		}
		go d.handle(ctx, m.ChannelID, m.Author.Username, query)
	})

	if err := d.Session.Open(); err != nil {
		return fmt.Errorf("discord: open: %w", err)
	}
	d.Logger.Info("discord gateway connected")

	<-ctx.Done()
	return d.Stop()
}

func (d *DiscordGateway) handle(ctx context.Context, channelID, user, query string) {
	d.Logger.Info("discord message", zap.String("user", user), zap.String("channel_id", channelID), zap.String("text", query))
	if err := d.Send(channelID, answer(ctx, d.Agent, user, query)); err != nil {
		d.Logger.Warn("discord send failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// discordQuery extracts the task from a message, or reports that the
// message is not addressed to the bot.
func discordQuery(content, guildID, authorID, selfID string) (string, bool) {
	if authorID == selfID {
		return "", false
	}
	content = strings.TrimSpace(content)
	if guildID == "" {
		return content, content != ""
	}

	for _, prefix := range []string{discordPrefix, "<@" + selfID + ">", "<@!" + selfID + ">"} {
		if rest, ok := strings.CutPrefix(content, prefix); ok {
			rest = strings.TrimSpace(rest)
			return rest, rest != ""
		}
	}
	return "", false
}

func (d *DiscordGateway) Send(chatID string, text string) error {
	_, err := d.Session.ChannelMessageSend(chatID, clip(text, discordMaxMessage))
	return err
}

func (d *DiscordGateway) Stop() error {
	return d.Session.Close()
}
