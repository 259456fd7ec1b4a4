package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return textReply{deps: deps, name: "start", text: func(d HandlerDeps) string { return d.Config.Messages.Welcome }}.Handle
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return textReply{deps: deps, name: "help", text: func(d HandlerDeps) string { return d.Config.Messages.Help }}.Handle
}

// textReply answers a command with a fixed configured text.
type textReply struct {
	deps HandlerDeps
	name string
	text func(HandlerDeps) string
}

func (h textReply) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling command", "chat_id", chatID, "user_id", update.Message.From.ID)

	text := h.text(h.deps)
	if h.deps.Bot.Username != "" {
		text = strings.ReplaceAll(text, "@botname", "@"+h.deps.Bot.Username)
	}
	if err := h.deps.NewSender(b).Send(ctx, chatID, text); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}
