package store

import "sync"

// Cell is an observable value. Subscribers run synchronously on the
// goroutine that called Set, after the lock is released.
type Cell[T any] struct {
	mu    sync.Mutex
	v     T
	equal func(a, b T) bool
	subs  map[int]func(T)
	next  int
}

// NewCell creates a cell. If equal is non-nil, a Set with an equal value
// is a no-op and notifies nobody.
func NewCell[T any](initial T, equal func(a, b T) bool) *Cell[T] {
	return &Cell[T]{v: initial, equal: equal, subs: make(map[int]func(T))}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Set stores v and notifies subscribers. It reports whether anything changed.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	if c.equal != nil && c.equal(c.v, v) {
		c.mu.Unlock()
		return false
	}
	c.v = v
	subs := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
	return true
}

// Subscribe registers fn for future changes and returns its cancel func.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func eq[T comparable](a, b T) bool { return a == b }
