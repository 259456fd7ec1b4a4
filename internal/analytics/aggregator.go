// Package analytics builds daily and weekly reports from the conversation
// store: message totals, active users, top senders and an LLM-written
// narrative of the day.
package analytics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/llm"
)

// UserStat is one sender's message count in a report.
type UserStat struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Count    int64  `json:"count"`
}

// DisplayName returns the sender's name, or the id when no name is known.
func (u UserStat) DisplayName() string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.UserID
}

// DailySummary is the report for one group and calendar date.
type DailySummary struct {
	GroupID       string     `json:"group_id"`
	Date          string     `json:"date"`
	TotalMessages int64      `json:"total_messages"`
	ActiveUsers   int        `json:"active_users"`
	TopUsers      []UserStat `json:"top_users"`
	Summary       string     `json:"summary"`
	SummaryFailed bool       `json:"summary_failed"`
}

// DayCount is the message total of one day of a week.
type DayCount struct {
	Date     string `json:"date"`
	Messages int64  `json:"messages"`
}

// WeeklySummary is the report for seven consecutive days.
type WeeklySummary struct {
	GroupID       string     `json:"group_id"`
	WeekStart     string     `json:"week_start"`
	WeekEnd       string     `json:"week_end"`
	TotalMessages int64      `json:"total_messages"`
	ActiveUsers   int        `json:"active_users"`
	DailyMessages []DayCount `json:"daily_messages"`
	TopUsers      []UserStat `json:"top_users"`
}

// Options tunes the aggregator. Zero values select the defaults.
type Options struct {
	TopUsers            int
	SummaryMessageLimit int
	Location            *time.Location
	NoMessagesSummary   string
	FallbackSummary     string
}

// Aggregator computes reports. Only the narrative summary touches the LLM.
type Aggregator struct {
	store  conversation.Store
	client llm.Client
	opts   Options
	logger *slog.Logger
}

// NewAggregator creates an Aggregator reading from store.
func NewAggregator(store conversation.Store, client llm.Client, opts Options, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.TopUsers <= 0 {
		opts.TopUsers = 10
	}
	if opts.SummaryMessageLimit <= 0 {
		opts.SummaryMessageLimit = 100
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NoMessagesSummary == "" {
		opts.NoMessagesSummary = DefaultNoMessagesSummary
	}
	if opts.FallbackSummary == "" {
		opts.FallbackSummary = DefaultFallbackSummary
	}
	return &Aggregator{
		store:  store,
		client: client,
		opts:   opts,
		logger: logger.With("component", "analytics"),
	}
}

// Location returns the calendar used to interpret dates.
func (a *Aggregator) Location() *time.Location {
	return a.opts.Location
}

// DailySummary reports on groupID for date (YYYY-MM-DD). A failing LLM call
// yields the fallback narrative instead of an error.
func (a *Aggregator) DailySummary(ctx context.Context, groupID, date string) (*DailySummary, error) {
	start, end, err := conversation.DayBounds(date, a.opts.Location)
	if err != nil {
		return nil, err
	}

	counts, err := a.store.DailyCounts(ctx, groupID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily counts: %w", err)
	}
	messages, err := a.store.MessagesInRange(ctx, groupID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	report := &DailySummary{GroupID: groupID, Date: date}
	for _, c := range counts {
		report.TotalMessages += c.Count
	}
	report.ActiveUsers = len(counts)
	report.TopUsers = rank(counts, namesFrom(messages), a.opts.TopUsers)

	if len(messages) > a.opts.SummaryMessageLimit {
		messages = messages[len(messages)-a.opts.SummaryMessageLimit:]
	}

	if len(messages) == 0 {
		report.Summary = a.opts.NoMessagesSummary
		return report, nil
	}

	summary, err := a.Summarize(ctx, messages)
	if err != nil {
		a.logger.ErrorContext(ctx, "Summary generation failed, using fallback", "group_id", groupID, "date", date, "error", err)
		report.Summary = a.opts.FallbackSummary
		report.SummaryFailed = true
		return report, nil
	}
	report.Summary = summary
	return report, nil
}

// Summarize asks the LLM for a short narrative of messages.
func (a *Aggregator) Summarize(ctx context.Context, messages []conversation.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString(SummaryRequestHeader)
	for i, m := range messages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		name := m.UserName
		if name == "" {
			name = m.UserID
		}
		sb.WriteString(name + ": " + m.Text)
	}

	text, err := a.client.Complete(ctx, []llm.Turn{llm.System(SummarySystemPrompt), llm.User(sb.String())})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// WeeklySummary reports on the seven days starting at weekStart (YYYY-MM-DD).
func (a *Aggregator) WeeklySummary(ctx context.Context, groupID, weekStart string) (*WeeklySummary, error) {
	first, err := time.ParseInLocation(conversation.DateLayout, weekStart, a.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid week start %q: %w", weekStart, err)
	}

	report := &WeeklySummary{GroupID: groupID, WeekStart: weekStart}
	var merged []conversation.UserCount
	index := map[string]int{}

	for i := 0; i < 7; i++ {
		date := first.AddDate(0, 0, i).Format(conversation.DateLayout)
		counts, err := a.store.DailyCounts(ctx, groupID, date)
		if err != nil {
			return nil, fmt.Errorf("failed to load counts for %s: %w", date, err)
		}

		var dayTotal int64
		for _, c := range counts {
			dayTotal += c.Count
			if pos, ok := index[c.UserID]; ok {
				merged[pos].Count += c.Count
				continue
			}
			index[c.UserID] = len(merged)
			merged = append(merged, c)
		}
		report.DailyMessages = append(report.DailyMessages, DayCount{Date: date, Messages: dayTotal})
		report.TotalMessages += dayTotal
		report.WeekEnd = date
	}

	start := first.UnixMilli()
	end := first.AddDate(0, 0, 7).UnixMilli() - 1
	messages, err := a.store.MessagesInRange(ctx, groupID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	report.ActiveUsers = len(merged)
	report.TopUsers = rank(merged, namesFrom(messages), a.opts.TopUsers)
	return report, nil
}

// rank orders counts by descending count, keeping first-seen order for ties,
// and returns at most limit entries.
func rank(counts []conversation.UserCount, names map[string]string, limit int) []UserStat {
	stats := make([]UserStat, 0, len(counts))
	for _, c := range counts {
		stats = append(stats, UserStat{UserID: c.UserID, UserName: names[c.UserID], Count: c.Count})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Count > stats[j].Count
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// namesFrom maps sender ids to the most recent display name seen.
func namesFrom(messages []conversation.Message) map[string]string {
	names := make(map[string]string, len(messages))
	for _, m := range messages {
		if m.UserName != "" {
			names[m.UserID] = m.UserName
		}
	}
	return names
}
