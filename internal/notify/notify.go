// Package notify sends CRITICAL / high-priority alerts out-of-band, grounded
// on web3guy0-polybot/internal/bot/telegram.go's bot.Bot Telegram wiring: a
// thin wrapper around go-telegram-bot-api that the core never depends on
// directly — it only sees the Notifier interface, so a dry-run or disabled
// config is a no-op.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"perpmaker/internal/config"
)

// Notifier sends a priority-tagged message. The Decision Loop holds this
// interface, never process-global configuration; the Executor holds no
// Notifier and sends no notifications.
type Notifier interface {
	Notify(priority, message string)
}

// NoopNotifier discards every message; used when Telegram is disabled.
type NoopNotifier struct{}

func (NoopNotifier) Notify(string, string) {}

// TelegramNotifier sends messages to one chat via the Telegram Bot API.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier connects a bot and returns a Notifier, or a
// NoopNotifier with a logged warning if the config doesn't enable it.
func NewTelegramNotifier(cfg config.NotifyConfig, logger *slog.Logger) Notifier {
	if !cfg.TelegramEnabled || cfg.TelegramToken == "" {
		return NoopNotifier{}
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Error("telegram bot init failed, notifications disabled", "error", err)
		return NoopNotifier{}
	}

	return &TelegramNotifier{api: api, chatID: cfg.TelegramChatID, logger: logger.With("component", "notify_telegram")}
}

func (n *TelegramNotifier) Notify(priority, message string) {
	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("[%s] %s", priority, message))
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("telegram send failed", "error", err)
	}
}
