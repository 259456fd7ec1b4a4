package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/bot/handlers"
	"github.com/edgard/chatkeeper/internal/config"
	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/kvstore"
	"github.com/edgard/chatkeeper/internal/llm"
	"github.com/edgard/chatkeeper/internal/responder"
	"github.com/edgard/chatkeeper/internal/snapshot"
)

const (
	groupID = int64(-1001)
	adminID = int64(99)
	botID   = int64(500)
)

type sent struct {
	chatID  int64
	replyTo int
	text    string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	typing int
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	return f.Reply(context.Background(), chatID, 0, text)
}

func (f *fakeSender) Reply(_ context.Context, chatID int64, replyTo int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID: chatID, replyTo: replyTo, text: text})
	return nil
}

func (f *fakeSender) Typing(context.Context, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

type fakeClient struct {
	reply string
	err   error
	calls int
	last  []llm.Turn
}

func (c *fakeClient) Complete(_ context.Context, turns []llm.Turn) (string, error) {
	c.calls++
	c.last = turns
	return c.reply, c.err
}

type fakeReporter struct {
	dates []string
	err   error
}

func (r *fakeReporter) Daily(_ context.Context, group, date string) (string, error) {
	r.dates = append(r.dates, "daily:"+group+":"+date)
	return "daily report", r.err
}

func (r *fakeReporter) Weekly(_ context.Context, group, date string) (string, error) {
	r.dates = append(r.dates, "weekly:"+group+":"+date)
	return "weekly report", r.err
}

type fakeCleaner struct {
	result snapshot.SweepResult
	err    error
}

func (c fakeCleaner) ForceCleanup(context.Context) (snapshot.SweepResult, error) {
	return c.result, c.err
}

type replyCounter struct{ ok, fallback int }

func (r *replyCounter) ObserveReply(fallback bool) {
	if fallback {
		r.fallback++
		return
	}
	r.ok++
}

type fixture struct {
	deps     handlers.HandlerDeps
	sender   *fakeSender
	client   *fakeClient
	store    conversation.Store
	reporter *fakeReporter
	replies  *replyCounter
}

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) // a Wednesday

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	store := conversation.NewStore(kvstore.New(kvstore.WithClock(clock)), nil, conversation.Options{}, nil)
	client := &fakeClient{reply: "hello there"}
	sender := &fakeSender{}
	reporter := &fakeReporter{}
	replies := &replyCounter{}

	cfg := &config.Config{
		Telegram: config.TelegramConfig{AdminUserID: adminID},
		Reports:  config.ReportsConfig{Timezone: "UTC"},
		Messages: config.MessagesConfig{
			Welcome:       "welcome @botname",
			Help:          "help",
			NotAuthorized: "not authorized",
			GeneralError:  "error",
			ReportFailed:  "report failed",
			InvalidDate:   "invalid date",
			GroupOnly:     "group only",
			CleanupDone:   "removed %d messages and %d tables",
		},
	}

	deps := handlers.HandlerDeps{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:    cfg,
		Bot:       handlers.BotIdentity{ID: botID, Username: "keeper_bot"},
		Responder: responder.New(store, client, responder.Options{FallbackReply: "sorry"}, nil, responder.WithClock(clock)),
		Reports:   reporter,
		Cleaner:   fakeCleaner{result: snapshot.SweepResult{MessagesRemoved: 3, StatsKeysRemoved: 1}},
		Replies:   replies,
		Clock:     clock,
		NewSender: func(*tgbot.Bot) handlers.Sender { return sender },
	}
	return &fixture{deps: deps, sender: sender, client: client, store: store, reporter: reporter, replies: replies}
}

func groupMessage(id int, from int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:   id,
		Chat: models.Chat{ID: groupID, Type: models.ChatTypeSupergroup},
		From: &models.User{ID: from, FirstName: "User", LastName: fmt.Sprint(from)},
		Text: text,
	}}
}

func TestMessageHandlerRecordsWithoutReplying(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	handle := handlers.NewMessageHandler(f.deps)

	handle(context.Background(), nil, groupMessage(1, 7, "just chatting"))

	if len(f.sender.texts()) != 0 || f.client.calls != 0 {
		t.Errorf("unaddressed message got a reply: %v", f.sender.texts())
	}
	stats, _ := f.store.DailyStats(context.Background(), "-1001", "2024-01-10")
	if stats["7"] != 1 {
		t.Errorf("DailyStats() = %v, want the message counted", stats)
	}
	recent, _ := f.store.RecentMessages(context.Background(), "-1001", 5)
	if len(recent) != 1 || recent[0].UserName != "User 7" || recent[0].ID != "1" {
		t.Errorf("RecentMessages() = %+v", recent)
	}
}

func TestMessageHandlerAnswersMention(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	handle := handlers.NewMessageHandler(f.deps)

	handle(context.Background(), nil, groupMessage(2, 7, "@Keeper_Bot what's up?"))

	f.sender.mu.Lock()
	got := f.sender.sent
	f.sender.mu.Unlock()
	if len(got) != 1 || got[0].text != "hello there" || got[0].replyTo != 2 || got[0].chatID != groupID {
		t.Fatalf("sent = %+v", got)
	}
	if f.sender.typing != 1 || f.replies.ok != 1 {
		t.Errorf("typing = %d, ok replies = %d", f.sender.typing, f.replies.ok)
	}

	recent, _ := f.store.RecentMessages(context.Background(), "-1001", 5)
	if len(recent) != 2 || recent[1].Text != "@Keeper_Bot what's up?" || recent[0].Text != "hello there" {
		t.Errorf("RecentMessages() = %+v, want the raw inbound text stored", recent)
	}
	if n := len(f.client.last); n == 0 || f.client.last[n-1].Text != "User 7: what's up?" {
		t.Errorf("prompt = %+v, want the mention removed from the last turn", f.client.last)
	}
}

func TestMessageHandlerAnswersReplyToBot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.client.err = errors.New("down")
	handle := handlers.NewMessageHandler(f.deps)

	update := groupMessage(3, 7, "and then?")
	update.Message.ReplyToMessage = &models.Message{ID: 2, From: &models.User{ID: botID, IsBot: true}}
	handle(context.Background(), nil, update)

	if texts := f.sender.texts(); len(texts) != 1 || texts[0] != "sorry" {
		t.Errorf("sent = %v, want the fallback", texts)
	}
	if f.replies.fallback != 1 {
		t.Errorf("fallback replies = %d", f.replies.fallback)
	}
}

func TestMessageHandlerIgnoresOtherUpdates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	handle := handlers.NewMessageHandler(f.deps)

	bot := groupMessage(4, 8, "beep")
	bot.Message.From.IsBot = true
	handle(context.Background(), nil, bot)
	handle(context.Background(), nil, &models.Update{ID: 1})
	handle(context.Background(), nil, groupMessage(5, 8, "   "))

	if n, _ := f.store.TotalMessageCount(context.Background(), "-1001"); n != 0 {
		t.Errorf("stored %d messages, want 0", n)
	}
	if len(f.sender.texts()) != 0 {
		t.Errorf("sent = %v", f.sender.texts())
	}
}

func TestPrivateChatGetsGroupOnlyNotice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	update := groupMessage(1, 7, "hi")
	update.Message.Chat = models.Chat{ID: 7, Type: models.ChatTypePrivate}

	handlers.NewMessageHandler(f.deps)(context.Background(), nil, update)
	handlers.NewStatsHandler(f.deps)(context.Background(), nil, update)

	texts := f.sender.texts()
	if len(texts) != 2 || texts[0] != "group only" || texts[1] != "group only" {
		t.Errorf("sent = %v", texts)
	}
}

func TestReportHandlers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		handler  func(handlers.HandlerDeps) tgbot.HandlerFunc
		text     string
		wantCall string
		wantText string
	}{
		{name: "stats default date", handler: handlers.NewStatsHandler, text: "/stats", wantCall: "daily:-1001:2024-01-10", wantText: "daily report"},
		{name: "stats explicit date", handler: handlers.NewStatsHandler, text: "/stats 2024-01-02", wantCall: "daily:-1001:2024-01-02", wantText: "daily report"},
		{name: "stats bad date", handler: handlers.NewStatsHandler, text: "/stats yesterday", wantText: "invalid date"},
		{name: "weekly default", handler: handlers.NewWeeklyHandler, text: "/weekly", wantCall: "weekly:-1001:2024-01-01", wantText: "weekly report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tt.handler(f.deps)(context.Background(), nil, groupMessage(1, 7, tt.text))

			if tt.wantCall == "" && len(f.reporter.dates) != 0 {
				t.Errorf("reporter called: %v", f.reporter.dates)
			}
			if tt.wantCall != "" && (len(f.reporter.dates) != 1 || f.reporter.dates[0] != tt.wantCall) {
				t.Errorf("reporter calls = %v, want %s", f.reporter.dates, tt.wantCall)
			}
			if texts := f.sender.texts(); len(texts) != 1 || texts[0] != tt.wantText {
				t.Errorf("sent = %v, want %q", texts, tt.wantText)
			}
		})
	}
}

func TestReportHandlerFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.reporter.err = errors.New("boom")
	handlers.NewStatsHandler(f.deps)(context.Background(), nil, groupMessage(1, 7, "/stats"))

	if texts := f.sender.texts(); len(texts) != 1 || texts[0] != "report failed" {
		t.Errorf("sent = %v", texts)
	}
}

func TestCleanupIsAdminOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	registered := handlers.RegisterAllCommands(f.deps)["/cleanup"]
	handle := registered.Handler
	for i := len(registered.Middleware) - 1; i >= 0; i-- {
		handle = registered.Middleware[i](handle)
	}

	handle(context.Background(), nil, groupMessage(1, 7, "/cleanup"))
	handle(context.Background(), nil, groupMessage(2, adminID, "/cleanup"))

	texts := f.sender.texts()
	want := []string{"not authorized", "removed 3 messages and 1 tables"}
	if len(texts) != 2 || texts[0] != want[0] || texts[1] != want[1] {
		t.Errorf("sent = %v, want %v", texts, want)
	}
}

func TestStartReplacesBotName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	handlers.NewStartHandler(f.deps)(context.Background(), nil, groupMessage(1, 7, "/start"))

	if texts := f.sender.texts(); len(texts) != 1 || texts[0] != "welcome @keeper_bot" {
		t.Errorf("sent = %v", texts)
	}
}

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()
	cmds := handlers.RegisterAllCommands(newFixture(t).deps)
	for _, name := range []string{"/start", "/help", "/stats", "/weekly", "/cleanup"} {
		h, ok := cmds[name]
		if !ok || h.Handler == nil {
			t.Errorf("command %s not registered", name)
		}
	}
	if len(cmds["/cleanup"].Middleware) != 1 {
		t.Error("/cleanup must be admin only")
	}
}

func TestCommandDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{text: "/stats", want: "", wantOK: true},
		{text: "/stats 2024-02-29", want: "2024-02-29", wantOK: true},
		{text: "/stats 2023-02-29", wantOK: false},
		{text: "/weekly@keeper_bot 2024-01-01 extra", want: "2024-01-01", wantOK: true},
	}
	for _, tt := range tests {
		got, ok := handlers.CommandDate(tt.text, time.UTC)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CommandDate(%q) = %q, %v, want %q, %v", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}
