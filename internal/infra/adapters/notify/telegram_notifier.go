package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

// TelegramNotifier pings the operator chat when a batch reaches a terminal
// state. Delivery failures never affect the batch outcome.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *TelegramNotifier) NotifyBatchFinished(ctx context.Context, b *model.Batch) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Batch %s %s\n", statusEmoji(b.Status), b.FolderName, b.Status)
	fmt.Fprintf(&sb, "Links: %d completed, %d failed of %d\n", b.CompletedLinks, b.FailedLinks, b.TotalLinks)
	if b.Pass > 1 {
		fmt.Fprintf(&sb, "Retry pass %d\n", b.Pass)
	}
	if b.DriveFolderURL != "" {
		fmt.Fprintf(&sb, "%s", b.DriveFolderURL)
	}

	msg := tgbotapi.NewMessage(n.chatID, sb.String())
	msg.DisableWebPagePreview = true
	_, err := n.bot.Send(msg)
	return err
}

func statusEmoji(s model.BatchStatus) string {
	switch s {
	case model.BatchStatusCompleted:
		return "✅"
	case model.BatchStatusFailed:
		return "❌"
	case model.BatchStatusCancelled:
		return "🚫"
	default:
		return "ℹ️"
	}
}
