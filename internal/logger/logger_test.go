package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatkeeper/internal/logger"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := logger.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "abcdefghij", n: 6, want: "abc..."},
		{in: "привет мир", n: 5, want: "пр..."},
		{in: "abcdef", n: 2, want: "..."},
	}
	for _, tt := range tests {
		if got := logger.Preview(tt.in, tt.n); got != tt.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestMiddlewareLogsUpdate(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := logger.New(&buf, "info", true)

	called := false
	next := func(context.Context, *bot.Bot, *models.Update) { called = true }
	handler := logger.Middleware(log)(next)

	handler(context.Background(), nil, &models.Update{
		ID: 7,
		Message: &models.Message{
			ID:   11,
			Chat: models.Chat{ID: -100, Type: models.ChatTypeSupergroup},
			From: &models.User{ID: 42},
			Text: strings.Repeat("x", 80),
		},
	})

	if !called {
		t.Fatal("middleware did not call the next handler")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "Finished processing update" || entry["chat_id"] != float64(-100) || entry["user_id"] != float64(42) {
		t.Errorf("log entry = %v", entry)
	}
	if preview, _ := entry["text_preview"].(string); len([]rune(preview)) != 50 {
		t.Errorf("text_preview has %d runes", len([]rune(preview)))
	}
}
