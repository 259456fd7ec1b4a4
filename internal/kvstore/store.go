// Package kvstore implements a small in-process key-value engine that emulates
// the subset of a sorted-set-and-hash server used by the bot: time-scored
// ordered sets, integer counter hashes and per-key expiry.
//
// Every key holds exactly one kind of value. Expired keys are purged lazily on
// the next access and proactively by a periodic sweep (see Run).
package kvstore

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrWrongType is returned when an operation targets a key holding another kind of value.
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	// ErrInvalidScore is returned when a member is added with a NaN score.
	ErrInvalidScore = errors.New("score is not a number")
	// ErrInvalidBound is returned for NaN or non-numeric range bounds.
	ErrInvalidBound = errors.New("score bound is not a number")
)

// Purge reasons reported to the purge hook.
const (
	PurgeLazy  = "lazy"
	PurgeSweep = "sweep"
)

// Counter is a single field of a counter hash.
type Counter struct {
	Field string
	Value int64
}

// Stats reports how many keys of each kind the store currently holds.
type Stats struct {
	OrderedSets   int `json:"ordered_sets"`
	CounterHashes int `json:"counter_hashes"`
	Expiries      int `json:"expiries"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for expiry decisions.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger used by the sweep loop.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPurgeHook registers fn to be told how many keys were purged and why.
// fn runs with the store lock held and must not call back into the store.
func WithPurgeHook(fn func(reason string, n int)) Option {
	return func(s *Store) {
		s.onPurge = fn
	}
}

// Store is the expiring key-value engine. All methods are safe for concurrent
// use; each one runs to completion under the store lock.
type Store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	logger   *slog.Logger
	sets     map[string]*orderedSet
	hashes   map[string]*counterHash
	expiries map[string]time.Time
	onPurge  func(reason string, n int)
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:    clockwork.NewRealClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sets:     make(map[string]*orderedSet),
		hashes:   make(map[string]*counterHash),
		expiries: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "kvstore")
	return s
}

// ZAdd inserts member with score into the ordered set at key, or moves an
// existing member to the new score. It reports whether member was new.
// The key's expiry is left untouched.
func (s *Store) ZAdd(key string, score float64, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zadd(key, score, member)
}

// ZRangeByScore returns the members with min <= score <= max in ascending
// score order. Use math.Inf for open bounds.
func (s *Store) ZRangeByScore(key string, min, max float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.IsNaN(min) || math.IsNaN(max) {
		return nil, ErrInvalidBound
	}
	z, err := s.readSet(key)
	if err != nil || z == nil {
		return []string{}, err
	}
	return z.rangeByScore(min, max), nil
}

// ZRevRange returns members ranked by descending score between the zero-based
// inclusive ranks start and stop. Negative ranks count from the lowest score,
// so ZRevRange(key, 0, -1) returns the whole set newest first.
func (s *Store) ZRevRange(key string, start, stop int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.readSet(key)
	if err != nil || z == nil {
		return []string{}, err
	}
	return z.revRange(start, stop), nil
}

// ZCard returns the number of members in the ordered set at key.
func (s *Store) ZCard(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.readSet(key)
	if err != nil || z == nil {
		return 0, err
	}
	return len(z.entries), nil
}

// ZRemRangeByScore deletes the members with min <= score <= max and returns
// how many were removed.
func (s *Store) ZRemRangeByScore(key string, min, max float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.IsNaN(min) || math.IsNaN(max) {
		return 0, ErrInvalidBound
	}
	z, err := s.readSet(key)
	if err != nil || z == nil {
		return 0, err
	}
	removed := z.removeRangeByScore(min, max)
	if len(z.entries) == 0 {
		s.removeLocked(key)
	}
	return removed, nil
}

// HIncrBy adds delta to field of the counter hash at key, creating both at
// zero when absent, and returns the new value. Negative deltas are allowed.
func (s *Store) HIncrBy(key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hincrby(key, field, delta)
}

// HGetAll returns a copy of the counter hash at key. An absent or expired key
// yields an empty map.
func (s *Store) HGetAll(key string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.readHash(key)
	if err != nil || h == nil {
		return map[string]int64{}, err
	}
	out := make(map[string]int64, len(h.values))
	for field, v := range h.values {
		out[field] = v
	}
	return out, nil
}

// HEntries returns the fields of the counter hash at key in the order they
// were first created.
func (s *Store) HEntries(key string) ([]Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.readHash(key)
	if err != nil || h == nil {
		return []Counter{}, err
	}
	out := make([]Counter, 0, len(h.fields))
	for _, field := range h.fields {
		out = append(out, Counter{Field: field, Value: h.values[field]})
	}
	return out, nil
}

// Expire sets the key to expire ttl from now, replacing any previous expiry.
// It returns false when the key does not exist. A non-positive ttl deletes
// the key immediately.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expire(key, ttl)
}

// TTL returns the remaining lifetime of key. The boolean is false when the key
// does not exist or has no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.existsLocked(key) {
		return 0, false
	}
	at, ok := s.expiries[key]
	if !ok {
		return 0, false
	}
	return at.Sub(s.clock.Now()), true
}

// Keys returns every live key starting with prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []string
	for k := range s.sets {
		if strings.HasPrefix(k, prefix) {
			candidates = append(candidates, k)
		}
	}
	for k := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			candidates = append(candidates, k)
		}
	}

	keys := make([]string, 0, len(candidates))
	for _, k := range candidates {
		if s.existsLocked(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Del removes key and reports whether it was live.
func (s *Store) Del(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.del(key)
}

// Stats returns the current key counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		OrderedSets:   len(s.sets),
		CounterHashes: len(s.hashes),
		Expiries:      len(s.expiries),
	}
}

// ParseBound parses a textual score bound. It accepts "-inf", "+inf", "inf"
// and decimal numbers.
func ParseBound(raw string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "-inf":
		return math.Inf(-1), nil
	case "+inf", "inf":
		return math.Inf(1), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0, ErrInvalidBound
	}
	return v, nil
}

func (s *Store) zadd(key string, score float64, member string) (bool, error) {
	if math.IsNaN(score) {
		return false, ErrInvalidScore
	}
	s.expireIfDue(key)
	if _, ok := s.hashes[key]; ok {
		return false, ErrWrongType
	}
	z, ok := s.sets[key]
	if !ok {
		z = newOrderedSet()
		s.sets[key] = z
	}
	return z.add(member, score), nil
}

func (s *Store) hincrby(key, field string, delta int64) (int64, error) {
	s.expireIfDue(key)
	if _, ok := s.sets[key]; ok {
		return 0, ErrWrongType
	}
	h, ok := s.hashes[key]
	if !ok {
		h = newCounterHash()
		s.hashes[key] = h
	}
	return h.incr(field, delta), nil
}

func (s *Store) expire(key string, ttl time.Duration) bool {
	if !s.existsLocked(key) {
		return false
	}
	if ttl <= 0 {
		s.removeLocked(key)
		return true
	}
	s.expiries[key] = s.clock.Now().Add(ttl)
	return true
}

func (s *Store) del(key string) bool {
	live := s.existsLocked(key)
	s.removeLocked(key)
	return live
}

func (s *Store) readSet(key string) (*orderedSet, error) {
	s.expireIfDue(key)
	if _, ok := s.hashes[key]; ok {
		return nil, ErrWrongType
	}
	return s.sets[key], nil
}

func (s *Store) readHash(key string) (*counterHash, error) {
	s.expireIfDue(key)
	if _, ok := s.sets[key]; ok {
		return nil, ErrWrongType
	}
	return s.hashes[key], nil
}

func (s *Store) existsLocked(key string) bool {
	s.expireIfDue(key)
	_, isSet := s.sets[key]
	_, isHash := s.hashes[key]
	return isSet || isHash
}

// expireIfDue purges key when its expiry instant has been reached.
func (s *Store) expireIfDue(key string) bool {
	at, ok := s.expiries[key]
	if !ok || s.clock.Now().Before(at) {
		return false
	}
	s.removeLocked(key)
	if s.onPurge != nil {
		s.onPurge(PurgeLazy, 1)
	}
	return true
}

func (s *Store) removeLocked(key string) {
	delete(s.sets, key)
	delete(s.hashes, key)
	delete(s.expiries, key)
}
