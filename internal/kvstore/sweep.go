package kvstore

import (
	"context"
	"errors"
	"time"
)

// PurgeExpired removes every key whose expiry has been reached and returns
// how many were removed.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	purged := 0
	for key, at := range s.expiries {
		if now.Before(at) {
			continue
		}
		s.removeLocked(key)
		purged++
	}
	if purged > 0 && s.onPurge != nil {
		s.onPurge(PurgeSweep, purged)
	}
	return purged
}

// Run sweeps expired keys every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Expiry sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return nil
		case <-ticker.Chan():
			if n := s.PurgeExpired(); n > 0 {
				s.logger.Debug("Purged expired keys", "count", n)
			}
		}
	}
}
