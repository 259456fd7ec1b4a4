package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgard/chatkeeper/internal/conversation"
)

// FormatDailyReport renders a daily summary as plain text.
func FormatDailyReport(s *DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Daily report - %s\n\n", s.Date)
	fmt.Fprintf(&b, "📨 Total messages: %d\n", s.TotalMessages)
	fmt.Fprintf(&b, "👥 Active users: %d\n\n", s.ActiveUsers)

	if len(s.TopUsers) > 0 {
		b.WriteString("🏆 Top senders:\n")
		for i, u := range s.TopUsers {
			fmt.Fprintf(&b, "%d. %s: %d\n", i+1, u.DisplayName(), u.Count)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "💡 Today's summary:\n%s", s.Summary)
	return b.String()
}

// FormatWeeklyReport renders a weekly summary as plain text.
func FormatWeeklyReport(w *WeeklySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 Weekly report - %s to %s\n\n", w.WeekStart, w.WeekEnd)
	fmt.Fprintf(&b, "📊 Total messages this week: %d\n\n", w.TotalMessages)

	b.WriteString("📅 Messages per day:\n")
	for _, d := range w.DailyMessages {
		fmt.Fprintf(&b, "%s %s: %d\n", weekdayLabel(d.Date), d.Date, d.Messages)
	}

	if len(w.TopUsers) > 0 {
		b.WriteString("\n🏆 Top senders this week:\n")
		for i, u := range w.TopUsers {
			fmt.Fprintf(&b, "%d. %s: %d\n", i+1, u.DisplayName(), u.Count)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func weekdayLabel(date string) string {
	t, err := time.Parse(conversation.DateLayout, date)
	if err != nil {
		return "   "
	}
	return t.Weekday().String()[:3]
}

// PreviousWeekStart returns the Monday of the week before the one containing now.
func PreviousWeekStart(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7 // days since Monday
	monday := time.Date(local.Year(), local.Month(), local.Day()-offset-7, 0, 0, 0, 0, loc)
	return monday.Format(conversation.DateLayout)
}
