// Package logpipe holds the deduplicating display buffer for live bot logs
// and the autoscroll decision for its viewport.
//
// A Buffer is not safe for concurrent use. Exactly one goroutine owns it:
// the TUI update loop or the headless logs consumer.
package logpipe

import (
	"github.com/modoterra/jukedash/pkg/core"
)

const (
	DefaultCapacity     = 500
	DefaultSeenCapacity = 10000
)

// Entry is one displayed log line.
type Entry struct {
	Seq    uint64 // monotonically increasing per buffer, starting at 1
	Key    core.EntryKey
	Event  core.LogEvent
	Origin core.Origin
}

// Result describes what Accept did with an event.
type Result struct {
	Entry   Entry
	Added   bool // false when the event was a duplicate
	Evicted bool
	// EvictedEntry is the head entry dropped to make room, when Evicted.
	EvictedEntry Entry
}

// Buffer is a fixed-capacity ring of entries in arrival order, guarded by a
// seen-set so each distinct event is displayed at most once.
type Buffer struct {
	ring  []Entry
	head  int
	size  int
	seq   uint64
	seen  *SeenSet
	stats Stats
}

// Stats are cumulative counters for a buffer.
type Stats struct {
	Accepted   uint64
	Duplicates uint64
	Evicted    uint64
}

// NewBuffer creates a buffer holding capacity entries. seenCapacity bounds
// the dedup window (0 = unbounded) and is raised to capacity if smaller, so
// a displayed entry can never be shown twice.
func NewBuffer(capacity, seenCapacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if seenCapacity > 0 && seenCapacity < capacity {
		seenCapacity = capacity
	}
	return &Buffer{
		ring: make([]Entry, capacity),
		seen: NewSeenSet(seenCapacity),
	}
}

// Accept derives the event's key and appends it unless already seen.
// Evicting the head entry leaves its key in the seen-set.
func (b *Buffer) Accept(ev core.LogEvent, origin core.Origin) Result {
	key := ev.Key()
	if !b.seen.Add(key) {
		b.stats.Duplicates++
		return Result{}
	}

	b.seq++
	e := Entry{Seq: b.seq, Key: key, Event: ev, Origin: origin}
	b.stats.Accepted++
	res := Result{Entry: e, Added: true}

	if b.size == len(b.ring) {
		res.Evicted = true
		res.EvictedEntry = b.ring[b.head]
		b.ring[b.head] = e
		b.head = (b.head + 1) % len(b.ring)
		b.stats.Evicted++
		return res
	}
	b.ring[(b.head+b.size)%len(b.ring)] = e
	b.size++
	return res
}

// Len returns the number of displayed entries.
func (b *Buffer) Len() int { return b.size }

// Cap returns the display capacity.
func (b *Buffer) Cap() int { return len(b.ring) }

// At returns the i-th entry, oldest first.
func (b *Buffer) At(i int) Entry {
	return b.ring[(b.head+i)%len(b.ring)]
}

// Entries returns a copy of the displayed entries, oldest first.
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, b.size)
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

// Seen reports whether key is inside the dedup window.
func (b *Buffer) Seen(key core.EntryKey) bool { return b.seen.Contains(key) }

// Stats returns cumulative counters.
func (b *Buffer) Stats() Stats { return b.stats }
