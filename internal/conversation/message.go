package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidMessage is returned when a message record is missing a required field.
var ErrInvalidMessage = errors.New("invalid message")

// DateLayout is the calendar date format used in counter keys and reports.
const DateLayout = "2006-01-02"

// Message is a single chat message as kept in a group's log.
// Records are immutable once stored.
type Message struct {
	ID        string `json:"message_id"`
	GroupID   string `json:"group_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Text      string `json:"raw_message"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Validate checks the fields required to store the message.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return fmt.Errorf("%w: empty message id", ErrInvalidMessage)
	case strings.TrimSpace(m.GroupID) == "":
		return fmt.Errorf("%w: empty group id", ErrInvalidMessage)
	case strings.TrimSpace(m.UserID) == "":
		return fmt.Errorf("%w: empty user id", ErrInvalidMessage)
	case m.Timestamp <= 0:
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidMessage)
	}
	return nil
}

// UserCount is one sender's message count for a day.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}

// DateOf formats t as a calendar date in loc.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// DayBounds returns the first and last millisecond of date in loc.
func DayBounds(date string, loc *time.Location) (int64, int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	start := day.UnixMilli()
	end := day.AddDate(0, 0, 1).UnixMilli() - 1
	return start, end, nil
}
