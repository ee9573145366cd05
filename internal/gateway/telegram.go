package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/scout/internal/observability"
)

const telegramMaxMessage = 4096

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Agent  Agent
	Logger *observability.Logger

	stopOnce sync.Once
}

func NewTelegramGateway(token string, a Agent, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if logger == nil {
		logger = observability.NewNop()
	}

	logger.Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{Bot: bot, Agent: a, Logger: logger}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return tg.Stop()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go tg.handle(ctx, update.Message)
		}
	}
}

// handle runs one task per message; tasks may wait minutes on a human.
func (tg *TelegramGateway) handle(ctx context.Context, m *tgbotapi.Message) {
	user := ""
	if m.From != nil {
		user = m.From.UserName
	}
	tg.Logger.Info("telegram message",
		zap.String("user", user), zap.Int64("chat_id", m.Chat.ID), zap.String("text", m.Text))

	reply := answer(ctx, tg.Agent, user, m.Text)
	if err := tg.Send(strconv.FormatInt(m.Chat.ID, 10), reply); err != nil {
		tg.Logger.Warn("telegram send failed", zap.Int64("chat_id", m.Chat.ID), zap.Error(err))
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, clip(text, telegramMaxMessage))
	_, err = tg.Bot.Send(msg)
	return err
}

// Stop ends the long poll. It is safe to call more than once.
func (tg *TelegramGateway) Stop() error {
	tg.stopOnce.Do(tg.Bot.StopReceivingUpdates)
	return nil
}
