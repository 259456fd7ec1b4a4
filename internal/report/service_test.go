package report_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/analytics"
	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/database"
	"github.com/edgard/chatkeeper/internal/kvstore"
	"github.com/edgard/chatkeeper/internal/llm"
	"github.com/edgard/chatkeeper/internal/report"
)

type stubClient struct{}

func (stubClient) Complete(context.Context, []llm.Turn) (string, error) { return "Lively day.", nil }

type countingObserver struct{ calls map[string]int }

func (o *countingObserver) ObserveReport(kind string, err error) {
	if err != nil {
		kind += ":error"
	}
	o.calls[kind]++
}

func TestDailyAndWeeklyAreArchived(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	store := conversation.NewStore(kvstore.New(kvstore.WithClock(clockwork.NewFakeClockAt(day))), nil, conversation.Options{}, nil)
	msg := conversation.Message{ID: "m1", GroupID: "g1", UserID: "u1", UserName: "Ann", Text: "hi", Timestamp: day.UnixMilli()}
	if err := store.Record(ctx, msg, "2024-01-01"); err != nil {
		t.Fatal(err)
	}

	db, err := database.NewDB(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	archive := database.NewStore(db, nil)

	obs := &countingObserver{calls: map[string]int{}}
	svc := report.NewService(analytics.NewAggregator(store, stubClient{}, analytics.Options{}, nil), archive, obs, nil)

	daily, err := svc.Daily(ctx, "g1", "2024-01-01")
	if err != nil {
		t.Fatalf("Daily() error = %v", err)
	}
	if !strings.Contains(daily, "Lively day.") || !strings.Contains(daily, "1. Ann: 1") {
		t.Errorf("Daily() = %q", daily)
	}
	if _, err := svc.Weekly(ctx, "g1", "2024-01-01"); err != nil {
		t.Fatalf("Weekly() error = %v", err)
	}
	if _, err := svc.Daily(ctx, "g1", "not-a-date"); err == nil {
		t.Error("Daily() with a bad date should fail")
	}

	reports, err := archive.ListReports(ctx, "g1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("archived %d reports, want 2", len(reports))
	}
	kinds := map[string]bool{}
	for _, r := range reports {
		kinds[r.Kind] = true
		if r.TotalMessages != 1 {
			t.Errorf("%s report TotalMessages = %d", r.Kind, r.TotalMessages)
		}
	}
	if !kinds[database.KindDaily] || !kinds[database.KindWeekly] {
		t.Errorf("archived kinds = %v", kinds)
	}
	if obs.calls["daily"] != 1 || obs.calls["weekly"] != 1 || obs.calls["daily:error"] != 1 {
		t.Errorf("observer calls = %v", obs.calls)
	}
}
