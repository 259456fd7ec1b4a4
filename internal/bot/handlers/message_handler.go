package handlers

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatkeeper/internal/responder"
)

const aiProcessingTimeout = 2 * time.Minute

// NewMessageHandler returns the default handler for plain messages. Every
// group text message is recorded; the bot answers only when it is mentioned
// or when someone replies to one of its messages.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	h := messageHandler{deps: deps}
	if deps.Bot.Username != "" {
		h.mention = regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(deps.Bot.Username) + `\b`)
	}
	return h.Handle
}

type messageHandler struct {
	deps    HandlerDeps
	mention *regexp.Regexp
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg := update.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		log.DebugContext(ctx, "Ignoring update without text or sender", "update_id", update.ID)
		return
	}
	if msg.From.IsBot {
		log.DebugContext(ctx, "Ignoring message from a bot", "user_id", msg.From.ID)
		return
	}

	chatID := msg.Chat.ID
	if !IsGroup(msg.Chat.Type) {
		if err := h.deps.NewSender(b).Send(ctx, chatID, h.deps.Config.Messages.GroupOnly); err != nil {
			log.ErrorContext(ctx, "Failed to send group-only notice", "error", err, "chat_id", chatID)
		}
		return
	}

	in := responder.Inbound{
		GroupID:   strconv.FormatInt(chatID, 10),
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		UserName:  DisplayName(msg.From),
		MessageID: strconv.Itoa(msg.ID),
		Text:      msg.Text,
	}

	if !h.addressed(msg) {
		if err := h.deps.Responder.Observe(ctx, in); err != nil {
			log.ErrorContext(ctx, "Failed to record message", "error", err, "chat_id", chatID)
		}
		return
	}

	if h.mention != nil {
		in.PromptText = strings.TrimSpace(h.mention.ReplaceAllString(in.Text, ""))
	}
	log.DebugContext(ctx, "Handling mention", "chat_id", chatID, "message_id", msg.ID)

	sender := h.deps.NewSender(b)
	sender.Typing(ctx, chatID)

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()
	reply, err := h.deps.Responder.Respond(aiCtx, in)
	if err != nil {
		log.ErrorContext(ctx, "Failed to handle mention", "error", err, "chat_id", chatID)
		return
	}
	if h.deps.Replies != nil {
		h.deps.Replies.ObserveReply(reply.Fallback)
	}

	if err := sender.Reply(ctx, chatID, msg.ID, reply.Text); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}

// addressed reports whether msg mentions the bot or replies to it.
func (h messageHandler) addressed(msg *models.Message) bool {
	if r := msg.ReplyToMessage; r != nil && r.From != nil && h.deps.Bot.ID != 0 && r.From.ID == h.deps.Bot.ID {
		return true
	}
	return h.mention != nil && h.mention.MatchString(msg.Text)
}

// IsGroup reports whether t is a group or supergroup chat.
func IsGroup(t models.ChatType) bool {
	return t == models.ChatTypeGroup || t == models.ChatTypeSupergroup
}

// DisplayName returns the user's full name, falling back to the username.
func DisplayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
