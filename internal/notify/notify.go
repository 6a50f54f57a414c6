// Package notify delivers run outcome notifications over Telegram.
// Delivery is best effort; a failed send is logged and never fails the
// run that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kurtnissen/ai-swarm/internal/config"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const maxMessageLen = 4096

type TelegramNotifier struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram token and chat_id are required")
	}
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, subject, body string, priority swarm.Priority) error {
	text := formatMessage(subject, body, priority)
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		msg := tu.Message(tu.ID(n.chatID), chunk)
		if _, err := n.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	slog.Debug("notification sent", "subject", subject, "priority", priority)
	return nil
}

func formatMessage(subject, body string, priority swarm.Priority) string {
	prefix := ""
	if priority == swarm.PriorityHigh {
		prefix = "⚠️ "
	}
	if body == "" {
		return prefix + subject
	}
	return prefix + subject + "\n\n" + body
}

// chunkMessage splits a message into chunks that fit within Telegram's
// message size limit, preferring newline boundaries.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}
