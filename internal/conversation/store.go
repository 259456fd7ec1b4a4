// Package conversation maps chat concepts (group message logs and per-day
// sender counters) onto the expiring key-value store.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/edgard/chatkeeper/internal/kvstore"
)

// Persister writes the current store state to durable storage.
type Persister interface {
	Rewrite(ctx context.Context) error
}

// Default retention windows.
const (
	DefaultMessageTTL = 7 * 24 * time.Hour
	DefaultStatsTTL   = 30 * 24 * time.Hour
)

// Options holds the retention windows applied on every write. Zero values
// select the defaults.
type Options struct {
	MessageTTL time.Duration // sliding lifetime of a group's whole log
	StatsTTL   time.Duration // lifetime of a per-day counter table
}

// Store defines the conversation operations used by the responder, the
// analytics aggregator and the admin API.
type Store interface {
	// SaveMessage appends msg to its group's log and extends the log's lifetime.
	SaveMessage(ctx context.Context, msg Message) error

	// Record saves msg and bumps its sender's counter for date in one batch.
	Record(ctx context.Context, msg Message, date string) error

	// RecentMessages returns up to count of the newest messages, newest first.
	RecentMessages(ctx context.Context, groupID string, count int) ([]Message, error)

	// MessagesInRange returns messages with startMs <= timestamp <= endMs, oldest first.
	MessagesInRange(ctx context.Context, groupID string, startMs, endMs int64) ([]Message, error)

	// BumpDailyCount increments userID's counter for the given group and date.
	BumpDailyCount(ctx context.Context, groupID, userID, date string) (int64, error)

	// DailyStats returns the per-sender counts for a group and date.
	DailyStats(ctx context.Context, groupID, date string) (map[string]int64, error)

	// DailyCounts is DailyStats ordered by first message of the day.
	DailyCounts(ctx context.Context, groupID, date string) ([]UserCount, error)

	// TotalMessageCount returns the size of the group's log.
	TotalMessageCount(ctx context.Context, groupID string) (int, error)

	// PurgeOlderThan drops log entries strictly older than cutoffMs.
	PurgeOlderThan(ctx context.Context, groupID string, cutoffMs int64) (int, error)

	// GroupIDs lists the groups that currently have a message log.
	GroupIDs(ctx context.Context) []string
}

type kvConversationStore struct {
	kv        *kvstore.Store
	persister Persister
	opts      Options
	logger    *slog.Logger
}

// NewStore creates a Store on top of kv. persister may be nil, in which case
// writes are kept in memory only.
func NewStore(kv *kvstore.Store, persister Persister, opts Options, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = DefaultMessageTTL
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = DefaultStatsTTL
	}
	return &kvConversationStore{
		kv:        kv,
		persister: persister,
		opts:      opts,
		logger:    logger.With("component", "conversation"),
	}
}

func (s *kvConversationStore) SaveMessage(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	member, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}

	key := MessageKey(msg.GroupID)
	results := s.kv.Pipeline().
		ZAdd(key, float64(msg.Timestamp), string(member)).
		Expire(key, s.opts.MessageTTL).
		Exec()
	if err := kvstore.FirstError(results); err != nil {
		return fmt.Errorf("failed to save message %s (group %s): %w", msg.ID, msg.GroupID, err)
	}

	s.logger.DebugContext(ctx, "Message saved", "group_id", msg.GroupID, "message_id", msg.ID)
	s.persist(ctx)
	return nil
}

func (s *kvConversationStore) Record(ctx context.Context, msg Message, date string) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	member, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}

	logKey := MessageKey(msg.GroupID)
	statsKey := StatsKey(msg.GroupID, date)
	results := s.kv.Pipeline().
		ZAdd(logKey, float64(msg.Timestamp), string(member)).
		Expire(logKey, s.opts.MessageTTL).
		HIncrBy(statsKey, msg.UserID, 1).
		Expire(statsKey, s.opts.StatsTTL).
		Exec()
	if err := kvstore.FirstError(results); err != nil {
		return fmt.Errorf("failed to record message %s (group %s): %w", msg.ID, msg.GroupID, err)
	}

	s.logger.DebugContext(ctx, "Message recorded", "group_id", msg.GroupID, "message_id", msg.ID, "date", date)
	s.persist(ctx)
	return nil
}

func (s *kvConversationStore) RecentMessages(ctx context.Context, groupID string, count int) ([]Message, error) {
	if count <= 0 {
		return []Message{}, nil
	}
	members, err := s.kv.ZRevRange(MessageKey(groupID), 0, count-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent messages for group %s: %w", groupID, err)
	}
	return s.decode(ctx, groupID, members), nil
}

func (s *kvConversationStore) MessagesInRange(ctx context.Context, groupID string, startMs, endMs int64) ([]Message, error) {
	members, err := s.kv.ZRangeByScore(MessageKey(groupID), float64(startMs), float64(endMs))
	if err != nil {
		return nil, fmt.Errorf("failed to read messages for group %s: %w", groupID, err)
	}
	return s.decode(ctx, groupID, members), nil
}

func (s *kvConversationStore) BumpDailyCount(ctx context.Context, groupID, userID, date string) (int64, error) {
	key := StatsKey(groupID, date)
	results := s.kv.Pipeline().
		HIncrBy(key, userID, 1).
		Expire(key, s.opts.StatsTTL).
		Exec()
	if err := kvstore.FirstError(results); err != nil {
		return 0, fmt.Errorf("failed to bump count for group %s on %s: %w", groupID, date, err)
	}
	s.persist(ctx)

	count, _ := results[0].Value.(int64)
	return count, nil
}

func (s *kvConversationStore) DailyStats(_ context.Context, groupID, date string) (map[string]int64, error) {
	stats, err := s.kv.HGetAll(StatsKey(groupID, date))
	if err != nil {
		return nil, fmt.Errorf("failed to read stats for group %s on %s: %w", groupID, date, err)
	}
	return stats, nil
}

func (s *kvConversationStore) DailyCounts(_ context.Context, groupID, date string) ([]UserCount, error) {
	entries, err := s.kv.HEntries(StatsKey(groupID, date))
	if err != nil {
		return nil, fmt.Errorf("failed to read stats for group %s on %s: %w", groupID, date, err)
	}
	counts := make([]UserCount, 0, len(entries))
	for _, e := range entries {
		counts = append(counts, UserCount{UserID: e.Field, Count: e.Value})
	}
	return counts, nil
}

func (s *kvConversationStore) TotalMessageCount(_ context.Context, groupID string) (int, error) {
	n, err := s.kv.ZCard(MessageKey(groupID))
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for group %s: %w", groupID, err)
	}
	return n, nil
}

func (s *kvConversationStore) PurgeOlderThan(ctx context.Context, groupID string, cutoffMs int64) (int, error) {
	// Strictly older: the upper bound is the largest float below the cutoff.
	upper := math.Nextafter(float64(cutoffMs), math.Inf(-1))
	removed, err := s.kv.ZRemRangeByScore(MessageKey(groupID), math.Inf(-1), upper)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages for group %s: %w", groupID, err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "Purged old messages", "group_id", groupID, "removed", removed)
		s.persist(ctx)
	}
	return removed, nil
}

func (s *kvConversationStore) GroupIDs(_ context.Context) []string {
	keys := s.kv.Keys(MessageKeyPrefix)
	groups := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := GroupFromMessageKey(k); ok {
			groups = append(groups, id)
		}
	}
	return groups
}

// decode parses stored members, skipping records that do not decode.
func (s *kvConversationStore) decode(ctx context.Context, groupID string, members []string) []Message {
	messages := make([]Message, 0, len(members))
	for _, raw := range members {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable message record", "group_id", groupID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func (s *kvConversationStore) persist(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Rewrite(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist snapshot", "error", err)
	}
}
