package logpipe

import (
	"container/list"

	"github.com/modoterra/jukedash/pkg/core"
)

// SeenSet remembers entry keys in arrival order. When bounded it forgets
// the oldest key first; a hit does not refresh a key's position.
type SeenSet struct {
	capacity int // 0 = unbounded
	order    *list.List
	keys     map[core.EntryKey]*list.Element
}

// NewSeenSet creates a set holding at most capacity keys (0 = unbounded).
func NewSeenSet(capacity int) *SeenSet {
	if capacity < 0 {
		capacity = 0
	}
	return &SeenSet{
		capacity: capacity,
		order:    list.New(),
		keys:     make(map[core.EntryKey]*list.Element),
	}
}

// Contains reports whether key has been recorded and not yet forgotten.
func (s *SeenSet) Contains(key core.EntryKey) bool {
	_, ok := s.keys[key]
	return ok
}

// Add records key. It returns false if the key was already present.
func (s *SeenSet) Add(key core.EntryKey) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = s.order.PushBack(key)
	if s.capacity > 0 && s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.keys, oldest.Value.(core.EntryKey))
	}
	return true
}

// Len returns the number of remembered keys.
func (s *SeenSet) Len() int { return len(s.keys) }
