package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgard/chatkeeper/internal/kvstore"
	"github.com/edgard/chatkeeper/internal/metrics"
	"github.com/edgard/chatkeeper/internal/snapshot"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestCollectorsExported(t *testing.T) {
	t.Parallel()
	m := metrics.New()

	kv := kvstore.New(kvstore.WithPurgeHook(m.ObservePurge))
	m.RegisterStore(kv)
	if _, err := kv.ZAdd("chat:group:messages:g1", 1, "m"); err != nil {
		t.Fatal(err)
	}
	if _, err := kv.HIncrBy("chat:group:stats:g1:2024-01-01", "u1", 1); err != nil {
		t.Fatal(err)
	}
	kv.Expire("chat:group:messages:g1", time.Hour)

	m.ObservePurge(kvstore.PurgeSweep, 3)
	m.ObserveRewrite(10*time.Millisecond, nil)
	m.ObserveRewrite(time.Millisecond, errors.New("disk full"))
	m.ObserveSweep(snapshot.SweepResult{MessagesRemoved: 4, StatsKeysRemoved: 2})
	m.ObserveReport("daily", nil)
	m.ObserveReport("weekly", errors.New("boom"))
	m.ObserveReply(true)

	body := scrape(t, m)
	for _, want := range []string{
		"chatkeeper_kvstore_ordered_sets 1",
		"chatkeeper_kvstore_counter_hashes 1",
		"chatkeeper_kvstore_expiries 1",
		`chatkeeper_kvstore_expired_keys_total{path="sweep"} 3`,
		"chatkeeper_snapshot_rewrite_duration_seconds_count 2",
		"chatkeeper_snapshot_rewrite_failures_total 1",
		"chatkeeper_retention_messages_removed_total 4",
		"chatkeeper_retention_stats_keys_removed_total 2",
		`chatkeeper_reports_total{kind="daily",outcome="ok"} 1`,
		`chatkeeper_reports_total{kind="weekly",outcome="error"} 1`,
		`chatkeeper_replies_total{outcome="fallback"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}
