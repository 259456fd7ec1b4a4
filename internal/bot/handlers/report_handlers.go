package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatkeeper/internal/analytics"
	"github.com/edgard/chatkeeper/internal/conversation"
)

const reportTimeout = 2 * time.Minute

// NewStatsHandler returns a handler for /stats [YYYY-MM-DD], the daily
// report of the current group. The date defaults to today.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return reportHandler{
		deps: deps,
		name: "stats",
		defaultDate: func(now time.Time, loc *time.Location) string {
			return conversation.DateOf(now, loc)
		},
		build: deps.Reports.Daily,
	}.Handle
}

// NewWeeklyHandler returns a handler for /weekly [YYYY-MM-DD], the weekly
// report starting at the given date. It defaults to last week's Monday.
func NewWeeklyHandler(deps HandlerDeps) bot.HandlerFunc {
	return reportHandler{
		deps:        deps,
		name:        "weekly",
		defaultDate: analytics.PreviousWeekStart,
		build:       deps.Reports.Weekly,
	}.Handle
}

type reportHandler struct {
	deps        HandlerDeps
	name        string
	defaultDate func(now time.Time, loc *time.Location) string
	build       func(ctx context.Context, groupID, date string) (string, error)
}

func (h reportHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := msg.Chat.ID
	sender := h.deps.NewSender(b)
	msgs := h.deps.Config.Messages

	if !IsGroup(msg.Chat.Type) {
		h.send(ctx, sender, chatID, msgs.GroupOnly)
		return
	}

	loc := h.deps.Config.Reports.Location()
	date, ok := CommandDate(msg.Text, loc)
	if !ok {
		h.send(ctx, sender, chatID, msgs.InvalidDate)
		return
	}
	if date == "" {
		date = h.defaultDate(h.deps.now().Now(), loc)
	}

	log.InfoContext(ctx, "Generating on-demand report", "chat_id", chatID, "date", date)
	sender.Typing(ctx, chatID)

	reportCtx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()
	text, err := h.build(reportCtx, strconv.FormatInt(chatID, 10), date)
	if err != nil {
		log.ErrorContext(ctx, "Report generation failed", "error", err, "chat_id", chatID)
		h.send(ctx, sender, chatID, msgs.ReportFailed)
		return
	}
	h.send(ctx, sender, chatID, text)
}

func (h reportHandler) send(ctx context.Context, sender Sender, chatID int64, text string) {
	if err := sender.Send(ctx, chatID, text); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send message", "handler", h.name, "error", err, "chat_id", chatID)
	}
}

// CommandDate extracts the optional date argument of a command. It returns
// "" and true when there is none, and false when the argument is not a
// valid YYYY-MM-DD date.
func CommandDate(text string, loc *time.Location) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", true
	}
	if _, err := time.ParseInLocation(conversation.DateLayout, fields[1], loc); err != nil {
		return "", false
	}
	return fields[1], true
}
