package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot sender
}

func NewTelegram(token string) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram bot token not configured")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	bot.Debug = false
	return &Telegram{bot: bot}, nil
}

// Notify sends to the chat named by a "telegram:<chat id>" channel.
func (t *Telegram) Notify(_ context.Context, n Notification) error {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(n.Channel, "telegram:"), 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat id: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, Title(n)+"\n\n"+Body(n))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
