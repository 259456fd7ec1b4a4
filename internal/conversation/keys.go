package conversation

import (
	"strings"
	"time"
)

// Key prefixes for the two kinds of data kept per group.
const (
	MessageKeyPrefix = "chat:group:messages:"
	StatsKeyPrefix   = "chat:group:stats:"
)

// MessageKey returns the ordered-set key holding a group's message log.
func MessageKey(groupID string) string {
	return MessageKeyPrefix + groupID
}

// StatsKey returns the counter-hash key holding a group's counts for date.
func StatsKey(groupID, date string) string {
	return StatsKeyPrefix + StatsID(groupID, date)
}

// StatsID is the composite "groupID:date" identifier used in snapshots.
func StatsID(groupID, date string) string {
	return groupID + ":" + date
}

// GroupFromMessageKey extracts the group id from a message log key.
func GroupFromMessageKey(key string) (string, bool) {
	groupID, ok := strings.CutPrefix(key, MessageKeyPrefix)
	return groupID, ok && groupID != ""
}

// SplitStatsID splits a "groupID:date" identifier. The date must parse.
func SplitStatsID(id string) (groupID, date string, ok bool) {
	i := strings.LastIndex(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	groupID, date = id[:i], id[i+1:]
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", "", false
	}
	return groupID, date, true
}

// ParseStatsKey extracts the group id and date from a counter-hash key.
func ParseStatsKey(key string) (groupID, date string, ok bool) {
	id, found := strings.CutPrefix(key, StatsKeyPrefix)
	if !found {
		return "", "", false
	}
	return SplitStatsID(id)
}
