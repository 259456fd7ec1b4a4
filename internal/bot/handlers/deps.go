package handlers

import (
	"context"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/config"
	"github.com/edgard/chatkeeper/internal/responder"
	"github.com/edgard/chatkeeper/internal/snapshot"
)

// Sender delivers outbound chat messages.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
	Reply(ctx context.Context, chatID int64, replyTo int, text string) error
	Typing(ctx context.Context, chatID int64)
}

// Reporter produces report texts.
type Reporter interface {
	Daily(ctx context.Context, groupID, date string) (string, error)
	Weekly(ctx context.Context, groupID, weekStart string) (string, error)
}

// Cleaner runs an immediate retention sweep.
type Cleaner interface {
	ForceCleanup(ctx context.Context) (snapshot.SweepResult, error)
}

// ReplyObserver counts conversational replies.
type ReplyObserver interface {
	ObserveReply(fallback bool)
}

// BotIdentity is the bot's own Telegram account, used for mention detection.
type BotIdentity struct {
	ID       int64
	Username string
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Bot       BotIdentity
	Responder *responder.Responder
	Reports   Reporter
	Cleaner   Cleaner
	Replies   ReplyObserver
	Clock     clockwork.Clock

	// NewSender adapts the bot passed to a handler for outbound messages.
	NewSender func(b *tgbot.Bot) Sender
}

func (d HandlerDeps) now() clockwork.Clock {
	if d.Clock == nil {
		return clockwork.NewRealClock()
	}
	return d.Clock
}
