package main

import (
	"fmt"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers personal notices to agents outside Slack. Implementations
// must tolerate users with no registration for their channel.
type Notifier interface {
	NotifyUser(user User, message string) error
}

// TelegramNotifier sends plain-text messages to agents who registered a
// Telegram chat ID.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier connects to the Telegram bot API. A missing token is
// not an error: it returns nil and Telegram notices are simply skipped.
func NewTelegramNotifier(token string, client *http.Client) (*TelegramNotifier, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	log.Printf("Telegram notifier authorized as @%s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot}, nil
}

func (n *TelegramNotifier) NotifyUser(user User, message string) error {
	if n == nil || n.bot == nil {
		return nil
	}
	if user.TelegramChatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(user.TelegramChatID, message)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message to chat %d: %w", user.TelegramChatID, err)
	}
	return nil
}
