package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewCleanupHandler returns a handler for /cleanup, which runs the retention
// sweep immediately. Register it behind AdminOnly.
func NewCleanupHandler(deps HandlerDeps) bot.HandlerFunc {
	return cleanupHandler{deps}.Handle
}

type cleanupHandler struct {
	deps HandlerDeps
}

func (h cleanupHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "cleanup")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	text := h.deps.Config.Messages.GeneralError
	result, err := h.deps.Cleaner.ForceCleanup(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Manual cleanup failed", "error", err)
	} else {
		log.InfoContext(ctx, "Manual cleanup finished", "messages_removed", result.MessagesRemoved, "stats_keys_removed", result.StatsKeysRemoved)
		text = fmt.Sprintf(h.deps.Config.Messages.CleanupDone, result.MessagesRemoved, result.StatsKeysRemoved)
	}

	if err := h.deps.NewSender(b).Send(ctx, chatID, text); err != nil {
		log.ErrorContext(ctx, "Failed to send cleanup result", "error", err, "chat_id", chatID)
	}
}
