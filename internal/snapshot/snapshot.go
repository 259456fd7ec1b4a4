// Package snapshot persists the conversation data held in the key-value store
// to a single JSON file and restores it at startup. It also owns the
// retention sweep that bounds how long data is kept regardless of TTLs.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/kvstore"
)

// Data is the on-disk document.
type Data struct {
	Messages    map[string][]conversation.Message `json:"messages"`
	Stats       map[string]Counters               `json:"stats"`
	LastCleanup int64                            `json:"lastCleanup"` // epoch milliseconds
}

// Empty returns a document with no groups and no cleanup recorded.
func Empty() *Data {
	return &Data{
		Messages: map[string][]conversation.Message{},
		Stats:    map[string]Counters{},
	}
}

// Options configures a Manager.
type Options struct {
	Path             string
	MessageTTL       time.Duration
	StatsTTL         time.Duration
	RetentionHorizon time.Duration
	CleanupInterval  time.Duration
	Location         *time.Location // calendar used for stats key dates
}

// SweepResult reports what a retention sweep removed.
type SweepResult struct {
	MessagesRemoved  int `json:"messages_removed"`
	StatsKeysRemoved int `json:"stats_keys_removed"`
}

// Info describes the persistence layer for operators.
type Info struct {
	Path        string        `json:"path"`
	LastCleanup time.Time     `json:"last_cleanup"`
	NextCleanup time.Time     `json:"next_cleanup"`
	Store       kvstore.Stats `json:"store"`
}

// Observer receives persistence events, typically for metrics.
type Observer interface {
	ObserveRewrite(elapsed time.Duration, err error)
	ObserveSweep(result SweepResult)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for sweeps and cleanup bookkeeping.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// Manager moves state between the key-value store and the snapshot file.
// Rewrites are serialized so concurrent write-throughs never interleave.
type Manager struct {
	kv       *kvstore.Store
	opts     Options
	clock    clockwork.Clock
	logger   *slog.Logger
	observer Observer

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewManager creates a Manager for kv. Zero durations select the defaults.
func NewManager(kv *kvstore.Store, opts Options, logger *slog.Logger, options ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = conversation.DefaultMessageTTL
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = conversation.DefaultStatsTTL
	}
	if opts.RetentionHorizon <= 0 {
		opts.RetentionHorizon = 30 * 24 * time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	m := &Manager{
		kv:     kv,
		opts:   opts,
		clock:  clockwork.NewRealClock(),
		logger: logger.With("component", "snapshot"),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Initialize loads the snapshot file into the store and runs the retention
// sweep when one is due. It is meant to be called once at startup.
func (m *Manager) Initialize(ctx context.Context) error {
	data, err := m.Load(ctx)
	if err != nil {
		return err
	}
	m.Hydrate(ctx, data)

	if m.DueForSweep(m.LastCleanup()) {
		m.logger.InfoContext(ctx, "Retention sweep due at startup")
		if _, err := m.ForceCleanup(ctx); err != nil {
			return err
		}
	}

	m.logger.InfoContext(ctx, "Snapshot loaded", "path", m.opts.Path, "groups", len(data.Messages), "stats", len(data.Stats))
	return nil
}

// Load reads the snapshot file. An absent file is created empty. Unreadable
// or corrupt content is logged and replaced by an empty document; only a
// failure to create the missing file is returned as an error.
func (m *Manager) Load(ctx context.Context) (*Data, error) {
	raw, err := os.ReadFile(m.opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.InfoContext(ctx, "Snapshot file not found, creating empty one", "path", m.opts.Path)
		empty := Empty()
		if err := m.write(empty); err != nil {
			return nil, fmt.Errorf("failed to create snapshot file: %w", err)
		}
		return empty, nil
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to read snapshot file, starting empty", "path", m.opts.Path, "error", err)
		return Empty(), nil
	}

	data := Empty()
	if err := json.Unmarshal(raw, data); err != nil {
		m.logger.ErrorContext(ctx, "Snapshot file is corrupt, starting empty", "path", m.opts.Path, "error", err)
		return Empty(), nil
	}
	if data.Messages == nil {
		data.Messages = map[string][]conversation.Message{}
	}
	if data.Stats == nil {
		data.Stats = map[string]Counters{}
	}
	return data, nil
}

// Hydrate replays data into the store and re-applies the configured TTLs.
func (m *Manager) Hydrate(ctx context.Context, data *Data) {
	if data == nil {
		return
	}

	for groupID, messages := range data.Messages {
		key := conversation.MessageKey(groupID)
		loaded := 0
		for _, msg := range messages {
			if err := msg.Validate(); err != nil {
				m.logger.WarnContext(ctx, "Skipping invalid message in snapshot", "group_id", groupID, "error", err)
				continue
			}
			member, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if _, err := m.kv.ZAdd(key, float64(msg.Timestamp), string(member)); err != nil {
				m.logger.WarnContext(ctx, "Skipping message in snapshot", "group_id", groupID, "error", err)
				continue
			}
			loaded++
		}
		if loaded > 0 {
			m.kv.Expire(key, m.opts.MessageTTL)
		}
	}

	for id, counters := range data.Stats {
		if _, _, ok := conversation.SplitStatsID(id); !ok {
			m.logger.WarnContext(ctx, "Snapshot stats key has no parseable date", "key", id)
		}
		key := conversation.StatsKeyPrefix + id
		loaded := 0
		for _, e := range counters {
			if e.Value <= 0 {
				continue
			}
			if _, err := m.kv.HIncrBy(key, e.Field, e.Value); err != nil {
				m.logger.WarnContext(ctx, "Skipping counter in snapshot", "key", id, "error", err)
				continue
			}
			loaded++
		}
		if loaded > 0 {
			m.kv.Expire(key, m.opts.StatsTTL)
		}
	}

	m.mu.Lock()
	if data.LastCleanup > 0 {
		m.lastCleanup = time.UnixMilli(data.LastCleanup)
	}
	m.mu.Unlock()
}

// Collect rebuilds the on-disk document from the live store content.
func (m *Manager) Collect(ctx context.Context) *Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(ctx)
}

func (m *Manager) collect(ctx context.Context) *Data {
	data := Empty()
	if !m.lastCleanup.IsZero() {
		data.LastCleanup = m.lastCleanup.UnixMilli()
	}

	for _, key := range m.kv.Keys(conversation.MessageKeyPrefix) {
		groupID, ok := conversation.GroupFromMessageKey(key)
		if !ok {
			continue
		}
		members, err := m.kv.ZRangeByScore(key, math.Inf(-1), math.Inf(1))
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping message log", "key", key, "error", err)
			continue
		}
		messages := make([]conversation.Message, 0, len(members))
		for _, raw := range members {
			var msg conversation.Message
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				m.logger.WarnContext(ctx, "Skipping unreadable message record", "group_id", groupID, "error", err)
				continue
			}
			messages = append(messages, msg)
		}
		if len(messages) > 0 {
			data.Messages[groupID] = messages
		}
	}

	for _, key := range m.kv.Keys(conversation.StatsKeyPrefix) {
		counters, err := m.kv.HEntries(key)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping stats table", "key", key, "error", err)
			continue
		}
		if len(counters) > 0 {
			data.Stats[key[len(conversation.StatsKeyPrefix):]] = Counters(counters)
		}
	}
	return data
}

// Rewrite collects the store content and atomically replaces the snapshot file.
func (m *Manager) Rewrite(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rewrite(ctx)
}

func (m *Manager) rewrite(ctx context.Context) error {
	start := m.clock.Now()
	err := m.write(m.collect(ctx))
	if m.observer != nil {
		m.observer.ObserveRewrite(m.clock.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("failed to rewrite snapshot %s: %w", m.opts.Path, err)
	}
	return nil
}

// DueForSweep reports whether more than one cleanup interval has passed since
// lastCleanup. A zero lastCleanup is always due.
func (m *Manager) DueForSweep(lastCleanup time.Time) bool {
	if lastCleanup.IsZero() {
		return true
	}
	return m.clock.Since(lastCleanup) > m.opts.CleanupInterval
}

// LastCleanup returns when the retention sweep last ran.
func (m *Manager) LastCleanup() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCleanup
}

// CleanOldData removes message log entries strictly older than the retention
// horizon and deletes counter tables whose date is before the horizon's date.
// It records the sweep time but does not rewrite the file.
func (m *Manager) CleanOldData(ctx context.Context) SweepResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanOldData(ctx)
}

func (m *Manager) cleanOldData(ctx context.Context) SweepResult {
	now := m.clock.Now()
	cutoff := now.Add(-m.opts.RetentionHorizon)
	cutoffMs := cutoff.UnixMilli()
	cutoffDate := conversation.DateOf(cutoff, m.opts.Location)
	upper := math.Nextafter(float64(cutoffMs), math.Inf(-1))

	var result SweepResult
	for _, key := range m.kv.Keys(conversation.MessageKeyPrefix) {
		removed, err := m.kv.ZRemRangeByScore(key, math.Inf(-1), upper)
		if err != nil {
			m.logger.WarnContext(ctx, "Failed to sweep message log", "key", key, "error", err)
			continue
		}
		result.MessagesRemoved += removed
	}

	for _, key := range m.kv.Keys(conversation.StatsKeyPrefix) {
		_, date, ok := conversation.ParseStatsKey(key)
		if !ok {
			m.logger.WarnContext(ctx, "Keeping stats table with unparseable date", "key", key)
			continue
		}
		if date < cutoffDate && m.kv.Del(key) {
			result.StatsKeysRemoved++
		}
	}

	m.lastCleanup = now
	if m.observer != nil {
		m.observer.ObserveSweep(result)
	}
	m.logger.InfoContext(ctx, "Retention sweep finished",
		"messages_removed", result.MessagesRemoved,
		"stats_keys_removed", result.StatsKeysRemoved,
		"cutoff", cutoff)
	return result
}

// ForceCleanup runs the retention sweep and rewrites the snapshot file.
func (m *Manager) ForceCleanup(ctx context.Context) (SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := m.cleanOldData(ctx)
	return result, m.rewrite(ctx)
}

// CheckRetention runs ForceCleanup when the cleanup interval has elapsed.
// It reports whether a sweep ran.
func (m *Manager) CheckRetention(ctx context.Context) (bool, error) {
	if !m.DueForSweep(m.LastCleanup()) {
		return false, nil
	}
	if _, err := m.ForceCleanup(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Info returns the current persistence state.
func (m *Manager) Info() Info {
	last := m.LastCleanup()
	next := m.clock.Now()
	if !last.IsZero() {
		next = last.Add(m.opts.CleanupInterval)
	}
	return Info{
		Path:        m.opts.Path,
		LastCleanup: last,
		NextCleanup: next,
		Store:       m.kv.Stats(),
	}
}

// write serializes data and replaces the file through a temporary sibling so
// readers never see a partial document.
func (m *Manager) write(data *Data) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(m.opts.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(m.opts.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, m.opts.Path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}
