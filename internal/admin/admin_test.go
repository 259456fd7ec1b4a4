package admin_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/admin"
	"github.com/edgard/chatkeeper/internal/bot"
	"github.com/edgard/chatkeeper/internal/bot/tasks"
	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/database"
	"github.com/edgard/chatkeeper/internal/kvstore"
	"github.com/edgard/chatkeeper/internal/metrics"
	"github.com/edgard/chatkeeper/internal/snapshot"
)

var (
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
	now   = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	nine  = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
)

type fakeRunner struct {
	ran []string
}

func (f *fakeRunner) Tasks() []string { return []string{"daily_summary"} }

func (f *fakeRunner) NextRun(string) (time.Time, error) {
	return now.Add(5 * time.Hour), nil
}

func (f *fakeRunner) RunNow(name string) error {
	if name != "daily_summary" {
		return fmt.Errorf("%w: %s", bot.ErrUnknownTask, name)
	}
	f.ran = append(f.ran, name)
	return nil
}

type fixture struct {
	server  *httptest.Server
	archive database.Store
	groups  *tasks.Groups
	runner  *fakeRunner
	path    string
}

func newFixture(t *testing.T, withArchive bool) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	m := metrics.New()
	kv := kvstore.New(kvstore.WithClock(clock))
	m.RegisterStore(kv)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	manager := snapshot.NewManager(kv, snapshot.Options{Path: path}, nil, snapshot.WithClock(clock))
	store := conversation.NewStore(kv, manager, conversation.Options{}, nil)

	for i, user := range []string{"u1", "u2", "u1"} {
		msg := conversation.Message{
			ID:        fmt.Sprintf("m%d", i+1),
			GroupID:   "-100",
			UserID:    user,
			UserName:  "name-" + user,
			Text:      "hello",
			Timestamp: nine.Add(time.Duration(i) * time.Minute).UnixMilli(),
		}
		if err := store.Record(ctx, msg, "2024-01-10"); err != nil {
			t.Fatal(err)
		}
	}
	old := conversation.Message{ID: "old", GroupID: "-100", UserID: "u3", Timestamp: now.AddDate(0, 0, -40).UnixMilli()}
	if err := store.SaveMessage(ctx, old); err != nil {
		t.Fatal(err)
	}

	f := &fixture{groups: tasks.NewGroups("-200"), runner: &fakeRunner{}, path: path}
	deps := admin.Deps{
		Logger:        quiet,
		Conversations: store,
		Snapshot:      manager,
		Groups:        f.groups,
		Tasks:         f.runner,
		Metrics:       m.Handler(),
	}
	if withArchive {
		db, err := database.NewDB(filepath.Join(t.TempDir(), "reports.db"))
		if err != nil {
			t.Fatalf("NewDB() error = %v", err)
		}
		t.Cleanup(func() { database.CloseDB(db) })
		f.archive = database.NewStore(db, quiet)
		deps.Archive = f.archive
	}

	f.server = httptest.NewServer(admin.NewRouter(deps))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode error = %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	var body map[string]string
	if code := f.do(t, http.MethodGet, "/healthz", &body); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /healthz = %d %v", code, body)
	}
}

func TestGroupStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	var body struct {
		Total   int64                    `json:"total_messages"`
		Users   []conversation.UserCount `json:"users"`
		LogSize int                      `json:"log_size"`
	}
	if code := f.do(t, http.MethodGet, "/api/groups/-100/stats?date=2024-01-10", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	want := []conversation.UserCount{{UserID: "u1", Count: 2}, {UserID: "u2", Count: 1}}
	if body.Total != 3 || !slices.Equal(body.Users, want) || body.LogSize != 4 {
		t.Errorf("stats = %+v", body)
	}

	if code := f.do(t, http.MethodGet, "/api/groups/-100/stats?date=10-01-2024", nil); code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", code)
	}
}

func TestGroupMessages(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	second := nine.Add(time.Minute).UnixMilli()
	tests := []struct {
		name  string
		query string
		code  int
		want  []string
	}{
		{"last two", "?from=-inf&to=inf&limit=2", http.StatusOK, []string{"m2", "m3"}},
		{"single point", fmt.Sprintf("?from=%d&to=%d", second, second), http.StatusOK, []string{"m2"}},
		{"open upper", fmt.Sprintf("?from=%d", second), http.StatusOK, []string{"m2", "m3"}},
		{"bad bound", "?from=abc", http.StatusBadRequest, nil},
		{"bad limit", "?limit=-1", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Messages []conversation.Message `json:"messages"`
			}
			code := f.do(t, http.MethodGet, "/api/groups/-100/messages"+tt.query, &body)
			if code != tt.code {
				t.Fatalf("status = %d, want %d", code, tt.code)
			}
			var ids []string
			for _, m := range body.Messages {
				ids = append(ids, m.ID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestGroupReports(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	report := &database.Report{GroupID: "-100", Kind: database.KindDaily, PeriodStart: "2024-01-10", TotalMessages: 3, Body: "report"}
	if err := f.archive.SaveReport(context.Background(), report); err != nil {
		t.Fatal(err)
	}

	var body struct {
		Reports []database.Report `json:"reports"`
	}
	if code := f.do(t, http.MethodGet, "/api/groups/-100/reports", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Reports) != 1 || body.Reports[0].Body != "report" {
		t.Errorf("reports = %+v", body.Reports)
	}
	if code := f.do(t, http.MethodGet, "/api/groups/-100/reports?limit=0", nil); code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", code)
	}
}

func TestReportsWithoutArchive(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	if code := f.do(t, http.MethodGet, "/api/groups/-100/reports", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestReportGroups(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	steps := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodPut, "/api/report-groups/-100", http.StatusCreated},
		{http.MethodPut, "/api/report-groups/-100", http.StatusOK},
		{http.MethodPut, "/api/report-groups/abc", http.StatusBadRequest},
		{http.MethodDelete, "/api/report-groups/-200", http.StatusNoContent},
		{http.MethodDelete, "/api/report-groups/-200", http.StatusNotFound},
	}
	for _, s := range steps {
		if code := f.do(t, s.method, s.path, nil); code != s.code {
			t.Errorf("%s %s = %d, want %d", s.method, s.path, code, s.code)
		}
	}
	if got := f.groups.Groups(); !slices.Equal(got, []string{"-100"}) {
		t.Errorf("Groups() = %v", got)
	}
}

func TestTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	var list struct {
		Tasks []struct {
			Name    string    `json:"name"`
			NextRun time.Time `json:"next_run"`
		} `json:"tasks"`
	}
	if code := f.do(t, http.MethodGet, "/api/tasks", &list); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].Name != "daily_summary" || !list.Tasks[0].NextRun.Equal(now.Add(5*time.Hour)) {
		t.Errorf("tasks = %+v", list.Tasks)
	}

	if code := f.do(t, http.MethodPost, "/api/tasks/daily_summary/run", nil); code != http.StatusAccepted {
		t.Errorf("run status = %d, want 202", code)
	}
	if code := f.do(t, http.MethodPost, "/api/tasks/nope/run", nil); code != http.StatusNotFound {
		t.Errorf("unknown task status = %d, want 404", code)
	}
	if !slices.Equal(f.runner.ran, []string{"daily_summary"}) {
		t.Errorf("ran = %v", f.runner.ran)
	}
}

func TestCleanupAndInfo(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	var result snapshot.SweepResult
	if code := f.do(t, http.MethodPost, "/api/cleanup", &result); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if result.MessagesRemoved != 1 {
		t.Errorf("MessagesRemoved = %d, want 1", result.MessagesRemoved)
	}

	var info struct {
		Snapshot     snapshot.Info `json:"snapshot"`
		Groups       []string      `json:"groups"`
		ReportGroups []string      `json:"report_groups"`
	}
	if code := f.do(t, http.MethodGet, "/api/info", &info); code != http.StatusOK {
		t.Fatalf("info status = %d", code)
	}
	if info.Snapshot.Path != f.path || !info.Snapshot.LastCleanup.Equal(now) {
		t.Errorf("snapshot info = %+v", info.Snapshot)
	}
	if !slices.Equal(info.Groups, []string{"-100"}) || !slices.Equal(info.ReportGroups, []string{"-200"}) {
		t.Errorf("info = %+v", info)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "chatkeeper_kvstore_ordered_sets 1") {
		t.Errorf("GET /metrics = %d\n%s", resp.StatusCode, raw)
	}
}

func TestServerTimeouts(t *testing.T) {
	t.Parallel()
	srv := admin.NewServer(":0", http.NotFoundHandler())
	if srv.ReadHeaderTimeout == 0 || srv.Addr != ":0" {
		t.Errorf("NewServer() = %+v", srv)
	}
}
