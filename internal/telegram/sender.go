package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// MaxMessageRunes is Telegram's limit on the length of one text message.
const MaxMessageRunes = 4096

const sendTimeout = 10 * time.Second

// Sender delivers outbound text through a bot.
type Sender struct {
	bot    *bot.Bot
	logger *slog.Logger
}

// NewSender wraps b.
func NewSender(b *bot.Bot, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{bot: b, logger: logger.With("component", "telegram_sender")}
}

// Send posts text to chatID, split into several messages when it is too long.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	return s.send(ctx, chatID, 0, text)
}

// Reply answers message replyTo in chatID.
func (s *Sender) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	return s.send(ctx, chatID, replyTo, text)
}

// Typing shows the typing indicator in chatID. Failures are only logged.
func (s *Sender) Typing(ctx context.Context, chatID int64) {
	if _, err := s.bot.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		s.logger.DebugContext(ctx, "Failed to send typing action", "chat_id", chatID, "error", err)
	}
}

func (s *Sender) send(ctx context.Context, chatID int64, replyTo int, text string) error {
	for i, part := range SplitMessage(text, MaxMessageRunes) {
		params := &bot.SendMessageParams{ChatID: chatID, Text: part}
		if replyTo > 0 && i == 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		sent, err := s.bot.SendMessage(sendCtx, params)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
		}
		s.logger.DebugContext(ctx, "Message sent", "chat_id", chatID, "message_id", sent.ID, "part", i+1)
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
