package kvstore

import "time"

// Result is the outcome of one queued pipeline command.
type Result struct {
	Value any
	Err   error
}

// Pipeline queues commands and executes them atomically in submission order.
// A failing command does not stop the ones after it.
type Pipeline struct {
	store *Store
	cmds  []func() (any, error)
}

// Pipeline starts an empty batch against s.
func (s *Store) Pipeline() *Pipeline {
	return &Pipeline{store: s}
}

// ZAdd queues an ordered-set insert. Its result value is a bool.
func (p *Pipeline) ZAdd(key string, score float64, member string) *Pipeline {
	p.cmds = append(p.cmds, func() (any, error) {
		return p.store.zadd(key, score, member)
	})
	return p
}

// HIncrBy queues a counter increment. Its result value is the new int64.
func (p *Pipeline) HIncrBy(key, field string, delta int64) *Pipeline {
	p.cmds = append(p.cmds, func() (any, error) {
		return p.store.hincrby(key, field, delta)
	})
	return p
}

// Expire queues an expiry update. Its result value is a bool.
func (p *Pipeline) Expire(key string, ttl time.Duration) *Pipeline {
	p.cmds = append(p.cmds, func() (any, error) {
		return p.store.expire(key, ttl), nil
	})
	return p
}

// Del queues a key deletion. Its result value is a bool.
func (p *Pipeline) Del(key string) *Pipeline {
	p.cmds = append(p.cmds, func() (any, error) {
		return p.store.del(key), nil
	})
	return p
}

// Len returns the number of queued commands.
func (p *Pipeline) Len() int {
	return len(p.cmds)
}

// Exec runs the queued commands under a single lock acquisition, so no other
// operation interleaves, and returns one Result per command.
func (p *Pipeline) Exec() []Result {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	results := make([]Result, 0, len(p.cmds))
	for _, cmd := range p.cmds {
		v, err := cmd()
		results = append(results, Result{Value: v, Err: err})
	}
	p.cmds = nil
	return results
}

// FirstError returns the first command error in results, if any.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
