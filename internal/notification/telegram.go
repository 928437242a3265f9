package notification

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatSender is the part of the bot API the broadcaster uses.
type chatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBroadcaster posts open-block announcements to a single chat.
type TelegramBroadcaster struct {
	bot    chatSender
	chatID int64
}

// NewTelegramBroadcaster authenticates the bot token against the Telegram API.
func NewTelegramBroadcaster(token string, chatID int64) (*TelegramBroadcaster, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramBroadcaster{bot: bot, chatID: chatID}, nil
}

func (t *TelegramBroadcaster) Broadcast(_ context.Context, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, "🎾 "+message)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", t.chatID, err)
	}
	return nil
}
