package responder_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/kvstore"
	"github.com/edgard/chatkeeper/internal/llm"
	"github.com/edgard/chatkeeper/internal/responder"
)

type fakeClient struct {
	reply string
	err   error
	turns []llm.Turn
}

func (f *fakeClient) Complete(_ context.Context, turns []llm.Turn) (string, error) {
	f.turns = turns
	return f.reply, f.err
}

var start = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T, client llm.Client, opts responder.Options) (*responder.Responder, conversation.Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(start)
	store := conversation.NewStore(kvstore.New(kvstore.WithClock(clock)), nil, conversation.Options{}, nil)
	return responder.New(store, client, opts, nil, responder.WithClock(clock)), store, clock
}

func TestRespondFallbackIsPersisted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{err: errors.New("provider down")}
	r, store, _ := setup(t, client, responder.Options{FallbackReply: "sorry!"})

	reply, err := r.Respond(ctx, responder.Inbound{GroupID: "g1", UserID: "u1", UserName: "Ann", MessageID: "m1", Text: "hi bot"})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Text != "sorry!" || !reply.Fallback {
		t.Errorf("Respond() = %+v, want fallback", reply)
	}

	recent, _ := store.RecentMessages(ctx, "g1", 5)
	if len(recent) != 2 {
		t.Fatalf("stored %d messages, want inbound and reply", len(recent))
	}
	if recent[0].Text != "sorry!" || recent[0].UserID != responder.DefaultBotSenderID || recent[0].ID == "" {
		t.Errorf("stored reply = %+v", recent[0])
	}
	if recent[1].ID != "m1" {
		t.Errorf("stored inbound = %+v", recent[1])
	}
}

func TestRespondCountsOnlyInbound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store, _ := setup(t, &fakeClient{reply: " hello! "}, responder.Options{})

	reply, err := r.Respond(ctx, responder.Inbound{GroupID: "g1", UserID: "u1", Text: "hey"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "hello!" || reply.Fallback {
		t.Errorf("Respond() = %+v", reply)
	}

	stats, _ := store.DailyStats(ctx, "g1", "2024-05-01")
	if len(stats) != 1 || stats["u1"] != 1 {
		t.Errorf("DailyStats() = %v, want only the inbound sender", stats)
	}
}

func TestRespondStoresRawTextAndPromptsWithPromptText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{reply: "sure"}
	r, store, _ := setup(t, client, responder.Options{})

	in := responder.Inbound{GroupID: "g1", UserID: "u1", UserName: "Ann", MessageID: "m1", Text: "@keeper_bot any news?", PromptText: "any news?"}
	if _, err := r.Respond(ctx, in); err != nil {
		t.Fatal(err)
	}

	if n := len(client.turns); n == 0 || client.turns[n-1].Text != "Ann: any news?" {
		t.Errorf("last turn = %+v, want the prompt text", client.turns)
	}
	recent, _ := store.RecentMessages(ctx, "g1", 5)
	if len(recent) != 2 || recent[1].Text != "@keeper_bot any news?" {
		t.Errorf("stored inbound = %+v, want the raw text", recent)
	}
}

func TestRespondPromptUsesHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{reply: "ok"}
	r, _, clock := setup(t, client, responder.Options{ContextCount: 3, SystemDirectives: []string{"be nice", "be brief"}})

	for _, in := range []responder.Inbound{
		{GroupID: "g1", UserID: "u1", UserName: "Ann", Text: "first"},
		{GroupID: "g1", UserID: "u2", UserName: "Bob", Text: "second"},
		{GroupID: "g1", UserID: "u3", Text: "third"},
	} {
		if err := r.Observe(ctx, in); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}
	if _, err := r.Respond(ctx, responder.Inbound{GroupID: "g1", UserID: "u1", UserName: "Ann", Text: "question?"}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if _, err := r.Respond(ctx, responder.Inbound{GroupID: "g1", UserID: "u2", UserName: "Bob", Text: "again"}); err != nil {
		t.Fatal(err)
	}

	want := []llm.Turn{
		llm.System("be nice\nbe brief"),
		llm.User("u3: third"),
		llm.User("Ann: question?"),
		llm.Assistant("ok"),
		llm.User("Bob: again"),
	}
	if len(client.turns) != len(want) {
		t.Fatalf("prompt = %+v, want %+v", client.turns, want)
	}
	for i := range want {
		if client.turns[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, client.turns[i], want[i])
		}
	}
}

func TestBuildPromptTruncatesHistory(t *testing.T) {
	t.Parallel()
	r, _, _ := setup(t, &fakeClient{}, responder.Options{MaxHistoryChars: 200})

	long := strings.Repeat("é", 250)
	history := []conversation.Message{{UserID: "u1", UserName: "Ann", Text: long}}
	turns := r.BuildPrompt(history, conversation.Message{UserID: "u2", Text: long})

	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if want := "Ann: " + strings.Repeat("é", 200) + "..."; turns[0].Text != want {
		t.Errorf("history turn has %d runes", len([]rune(turns[0].Text)))
	}
	if turns[1].Text != "u2: "+long {
		t.Error("the new message must not be truncated")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text  string
		limit int
		want  string
	}{
		{text: "short", limit: 10, want: "short"},
		{text: "exactly", limit: 7, want: "exactly"},
		{text: "toolong", limit: 3, want: "too..."},
		{text: "日本語です", limit: 2, want: "日本..."},
		{text: "any", limit: 0, want: "any"},
	}
	for _, tt := range tests {
		if got := responder.Truncate(tt.text, tt.limit); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
		}
	}
}

func TestRespondRejectsInvalidInbound(t *testing.T) {
	t.Parallel()
	client := &fakeClient{reply: "unused"}
	r, _, _ := setup(t, client, responder.Options{})

	_, err := r.Respond(context.Background(), responder.Inbound{GroupID: "g1", Text: "no sender"})
	if !errors.Is(err, conversation.ErrInvalidMessage) {
		t.Errorf("Respond() error = %v, want ErrInvalidMessage", err)
	}
	if client.turns != nil {
		t.Error("model should not be called for an invalid message")
	}
}
