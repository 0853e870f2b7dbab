// ABOUTME: Thread-safe cache of canonical message keys for duplicate suppression.
// ABOUTME: Tracks a high-water mark so catch-up can resume after a restart.

package dedupe

import (
	"sync"
	"time"

	"maunium.net/go/mautrix/id"

	"github.com/2389/roomkeeper/internal/state"
)

// Cache is the in-memory set of canonical keys seen on the monitored
// room, plus the identity of the most recently processed message. It is
// safe for concurrent use by the sync handler and the catch-up scan.
//
// The cache owns its state for the process lifetime; callers persist it
// via Snapshot so the lock is never held across file or network I/O.
type Cache struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	mark   id.EventID
	markTS time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{seen: make(map[string]struct{})}
}

// FromState creates a cache seeded from a previously persisted state.
func FromState(st state.State) *Cache {
	c := New()
	for _, key := range st.SeenKeys {
		c.seen[key] = struct{}{}
	}
	c.mark = id.EventID(st.HighWaterMark)
	c.markTS = st.HighWaterTS
	return c
}

// TryInsert atomically inserts the key if it is absent. It returns true
// if the key was newly inserted, false if it was already present (the
// message is a duplicate). First insert wins: no two concurrent callers
// can both observe absence for the same key.
func (c *Cache) TryInsert(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seen[key]; dup {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

// AdvanceHighWaterMark records the most recently processed message.
// Matrix event IDs are opaque, so the origin server timestamp carries
// the ordering: a call with an older timestamp than the stored mark is
// ignored, keeping the mark monotone along the room's message order.
func (c *Cache) AdvanceHighWaterMark(eventID id.EventID, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mark != "" && ts.Before(c.markTS) {
		return
	}
	c.mark = eventID
	c.markTS = ts
}

// HighWaterMark returns the stored mark and its timestamp. The mark is
// empty if no message has been processed yet.
func (c *Cache) HighWaterMark() (id.EventID, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mark, c.markTS
}

// Len returns the number of distinct keys seen.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Snapshot copies the cache into a persistable state record.
func (c *Cache) Snapshot() state.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.seen))
	for key := range c.seen {
		keys = append(keys, key)
	}
	return state.State{
		SeenKeys:      keys,
		HighWaterMark: string(c.mark),
		HighWaterTS:   c.markTS,
	}
}
