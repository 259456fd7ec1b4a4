package kvstore

import "sort"

type scoredMember struct {
	member string
	score  float64
	seq    uint64
}

// before orders entries by score, breaking ties by insertion sequence.
func (a scoredMember) before(b scoredMember) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.seq < b.seq
}

// orderedSet keeps its entries sorted by (score, seq) so range queries are a
// pair of binary searches.
type orderedSet struct {
	entries []scoredMember
	index   map[string]scoredMember
	nextSeq uint64
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]scoredMember)}
}

func (z *orderedSet) add(member string, score float64) bool {
	old, exists := z.index[member]
	if exists {
		if old.score == score {
			return false
		}
		z.remove(old)
	}

	z.nextSeq++
	e := scoredMember{member: member, score: score, seq: z.nextSeq}
	i := z.search(e)
	z.entries = append(z.entries, scoredMember{})
	copy(z.entries[i+1:], z.entries[i:])
	z.entries[i] = e
	z.index[member] = e
	return !exists
}

func (z *orderedSet) search(e scoredMember) int {
	return sort.Search(len(z.entries), func(i int) bool {
		return !z.entries[i].before(e)
	})
}

func (z *orderedSet) remove(e scoredMember) {
	i := z.search(e)
	if i < len(z.entries) && z.entries[i].member == e.member {
		z.entries = append(z.entries[:i], z.entries[i+1:]...)
	}
	delete(z.index, e.member)
}

// bounds returns the half-open index range of entries with min <= score <= max.
func (z *orderedSet) bounds(min, max float64) (int, int) {
	lo := sort.Search(len(z.entries), func(i int) bool { return z.entries[i].score >= min })
	hi := sort.Search(len(z.entries), func(i int) bool { return z.entries[i].score > max })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (z *orderedSet) rangeByScore(min, max float64) []string {
	lo, hi := z.bounds(min, max)
	out := make([]string, 0, hi-lo)
	for _, e := range z.entries[lo:hi] {
		out = append(out, e.member)
	}
	return out
}

func (z *orderedSet) removeRangeByScore(min, max float64) int {
	lo, hi := z.bounds(min, max)
	for _, e := range z.entries[lo:hi] {
		delete(z.index, e.member)
	}
	z.entries = append(z.entries[:lo], z.entries[hi:]...)
	return hi - lo
}

func (z *orderedSet) revRange(start, stop int) []string {
	n := len(z.entries)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return []string{}
	}

	out := make([]string, 0, stop-start+1)
	for rank := start; rank <= stop; rank++ {
		out = append(out, z.entries[n-1-rank].member)
	}
	return out
}

// counterHash remembers field creation order so callers can break ties
// deterministically.
type counterHash struct {
	fields []string
	values map[string]int64
}

func newCounterHash() *counterHash {
	return &counterHash{values: make(map[string]int64)}
}

func (h *counterHash) incr(field string, delta int64) int64 {
	v, ok := h.values[field]
	if !ok {
		h.fields = append(h.fields, field)
	}
	v += delta
	h.values[field] = v
	return v
}
