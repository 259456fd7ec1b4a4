// Package responder turns an inbound group message into an LLM reply using
// the group's recent history as context, and records both sides of the
// exchange in the conversation store.
package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/llm"
)

const (
	// DefaultBotSenderID marks messages written by the bot itself.
	DefaultBotSenderID = "bot"
	// DefaultFallbackReply is sent when the model cannot be reached.
	DefaultFallbackReply = "Sorry, I can't answer right now. Please try again in a moment."

	minHistoryChars = 200
	maxHistoryChars = 500
	ellipsis        = "..."
)

// Inbound is a message received from the messaging platform.
type Inbound struct {
	GroupID   string
	UserID    string
	UserName  string
	MessageID string
	Text      string // raw text, stored as received

	// PromptText replaces Text in the model prompt when set, e.g. with the
	// bot mention removed.
	PromptText string
}

// Options shapes the prompt.
type Options struct {
	ContextCount     int
	MaxHistoryChars  int
	BotSenderID      string
	BotName          string
	SystemDirectives []string
	FallbackReply    string
	Location         *time.Location
}

// Reply is the outcome of Respond.
type Reply struct {
	Text     string
	Fallback bool
	Message  conversation.Message
}

// Option configures a Responder.
type Option func(*Responder)

// WithClock sets the clock used to timestamp records.
func WithClock(c clockwork.Clock) Option {
	return func(r *Responder) { r.clock = c }
}

// Responder builds prompts and records conversations.
type Responder struct {
	store  conversation.Store
	client llm.Client
	opts   Options
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a Responder. MaxHistoryChars is clamped to [200, 500].
func New(store conversation.Store, client llm.Client, opts Options, logger *slog.Logger, options ...Option) *Responder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ContextCount < 0 {
		opts.ContextCount = 0
	}
	if opts.MaxHistoryChars < minHistoryChars {
		opts.MaxHistoryChars = minHistoryChars
	}
	if opts.MaxHistoryChars > maxHistoryChars {
		opts.MaxHistoryChars = maxHistoryChars
	}
	if opts.BotSenderID == "" {
		opts.BotSenderID = DefaultBotSenderID
	}
	if opts.BotName == "" {
		opts.BotName = opts.BotSenderID
	}
	if opts.FallbackReply == "" {
		opts.FallbackReply = DefaultFallbackReply
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	r := &Responder{
		store:  store,
		client: client,
		opts:   opts,
		clock:  clockwork.NewRealClock(),
		logger: logger.With("component", "responder"),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Observe records a message the bot does not answer: it is appended to the
// group's log and counted for the day.
func (r *Responder) Observe(ctx context.Context, in Inbound) error {
	msg := r.inboundMessage(in)
	if err := r.store.Record(ctx, msg, conversation.DateOf(msg.Time(), r.opts.Location)); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// Respond answers in. The history is read before in is recorded so the new
// message appears once, as the last user turn. A failing model yields the
// fallback reply, which is stored like any other reply. Only an invalid
// inbound message is returned as an error.
func (r *Responder) Respond(ctx context.Context, in Inbound) (Reply, error) {
	log := r.logger.With("group_id", in.GroupID, "user_id", in.UserID)
	msg := r.inboundMessage(in)
	if err := msg.Validate(); err != nil {
		return Reply{}, err
	}

	history, err := r.store.RecentMessages(ctx, in.GroupID, r.opts.ContextCount)
	if err != nil {
		log.WarnContext(ctx, "Failed to load history, answering without context", "error", err)
		history = nil
	}

	if err := r.store.Record(ctx, msg, conversation.DateOf(msg.Time(), r.opts.Location)); err != nil {
		log.ErrorContext(ctx, "Failed to record inbound message", "error", err)
	}

	prompt := msg
	if strings.TrimSpace(in.PromptText) != "" {
		prompt.Text = in.PromptText
	}

	reply := Reply{}
	text, err := r.client.Complete(ctx, r.BuildPrompt(history, prompt))
	switch {
	case err == nil && strings.TrimSpace(text) != "":
		reply.Text = strings.TrimSpace(text)
	case err == nil:
		log.WarnContext(ctx, "Empty model response, using fallback")
		reply.Text, reply.Fallback = r.opts.FallbackReply, true
	default:
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.WarnContext(ctx, "Model call timed out or was cancelled, using fallback", "error", err)
		} else {
			log.ErrorContext(ctx, "Model call failed, using fallback", "error", err)
		}
		reply.Text, reply.Fallback = r.opts.FallbackReply, true
	}

	reply.Message = conversation.Message{
		ID:        uuid.NewString(),
		GroupID:   in.GroupID,
		UserID:    r.opts.BotSenderID,
		UserName:  r.opts.BotName,
		Text:      reply.Text,
		Timestamp: r.clock.Now().UnixMilli(),
	}
	if err := r.store.SaveMessage(ctx, reply.Message); err != nil {
		log.ErrorContext(ctx, "Failed to save reply", "error", err)
	}

	log.DebugContext(ctx, "Reply generated", "history", len(history), "fallback", reply.Fallback)
	return reply, nil
}

// BuildPrompt assembles the turns for msg. history is newest first, as
// returned by the store.
func (r *Responder) BuildPrompt(history []conversation.Message, msg conversation.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(history)+2)
	if len(r.opts.SystemDirectives) > 0 {
		turns = append(turns, llm.System(strings.Join(r.opts.SystemDirectives, "\n")))
	}

	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		text := Truncate(h.Text, r.opts.MaxHistoryChars)
		if h.UserID == r.opts.BotSenderID {
			turns = append(turns, llm.Assistant(text))
			continue
		}
		turns = append(turns, llm.User(speaker(h)+": "+text))
	}

	return append(turns, llm.User(speaker(msg)+": "+msg.Text))
}

// Truncate shortens text to limit runes, marking the cut with "...".
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + ellipsis
}

func (r *Responder) inboundMessage(in Inbound) conversation.Message {
	id := in.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	return conversation.Message{
		ID:        id,
		GroupID:   in.GroupID,
		UserID:    in.UserID,
		UserName:  in.UserName,
		Text:      in.Text,
		Timestamp: r.clock.Now().UnixMilli(),
	}
}

func speaker(m conversation.Message) string {
	if m.UserName != "" {
		return m.UserName
	}
	return m.UserID
}
