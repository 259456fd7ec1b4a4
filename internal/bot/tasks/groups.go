package tasks

import (
	"slices"
	"sync"
)

// Groups is the mutable list of groups that receive scheduled reports.
type Groups struct {
	mu  sync.RWMutex
	ids []string
}

// NewGroups creates a list holding ids, without duplicates.
func NewGroups(ids ...string) *Groups {
	g := &Groups{}
	for _, id := range ids {
		g.AddGroup(id)
	}
	return g
}

// AddGroup appends id and reports whether it was new.
func (g *Groups) AddGroup(id string) bool {
	if id == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if slices.Contains(g.ids, id) {
		return false
	}
	g.ids = append(g.ids, id)
	return true
}

// RemoveGroup drops id and reports whether it was present.
func (g *Groups) RemoveGroup(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := slices.Index(g.ids, id)
	if i < 0 {
		return false
	}
	g.ids = slices.Delete(g.ids, i, i+1)
	return true
}

// Groups returns a copy of the list in insertion order.
func (g *Groups) Groups() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.ids)
}
