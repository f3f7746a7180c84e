package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Idle is the number of persistent entries with no users.
	Idle int
	// Hits counts successful TryReference calls.
	Hits uint64
	// Misses counts TryReference calls for absent identifiers.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), or 0 with no lookups.
	HitRate float64
	// Evictions counts removed entries.
	Evictions uint64
	// Underflows counts Dereference calls on entries with no users.
	Underflows uint64
}

// refEntry is a cached value with its user count.
type refEntry[V any] struct {
	value    V
	users    int
	priority int

	// idle is non-nil while the entry sits unused in the idle list.
	idle *lruNode
}

// RefCache maps identifiers to shared values with per-identifier user counts.
type RefCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*refEntry[V]
	idle    lruList

	onEvict func(id string, v V)
	logger  atomic.Pointer[slog.Logger]

	hits       atomic.Uint64
	misses     atomic.Uint64
	evictions  atomic.Uint64
	underflows atomic.Uint64
}

// New creates an empty cache. A nil logger disables logging.
func New[V any](logger *slog.Logger) *RefCache[V] {
	c := &RefCache[V]{entries: make(map[string]*refEntry[V])}
	c.SetLogger(logger)
	return c
}

// SetLogger replaces the cache's logger. Nil disables logging.
func (c *RefCache[V]) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	c.logger.Store(l)
}

// OnEvict sets the function called with every evicted value.
// It must be set before the cache is shared between goroutines.
func (c *RefCache[V]) OnEvict(fn func(id string, v V)) {
	c.onEvict = fn
}

// TryRegister inserts v under id with no users.
// It returns false if id is already present.
//
// A registered entry with priority > 0 starts out idle; an entry with
// priority <= 0 stays until its first reference is dropped.
func (c *RefCache[V]) TryRegister(id string, v V, priority int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		c.logger.Load().Warn("cache: duplicate register", "id", id)
		return false
	}
	e := &refEntry[V]{value: v, priority: priority}
	if priority > 0 {
		e.idle = c.idle.PushFront(id)
	}
	c.entries[id] = e
	return true
}

// TryReference increments the user count of id and returns its value.
// It returns false if id is absent.
//
// The value stays owned by the cache; callers must pair each successful
// TryReference with exactly one Dereference and must not release it.
func (c *RefCache[V]) TryReference(id string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	if e.idle != nil {
		c.idle.Remove(e.idle)
		e.idle = nil
	}
	e.users++
	c.hits.Add(1)
	return e.value, true
}

// Dereference decrements the user count of id.
//
// When the count reaches zero an entry with priority <= 0 is evicted and a
// positive-priority entry becomes idle. Dereferencing an absent id, or an
// entry that has no users, returns false and changes nothing.
func (c *RefCache[V]) Dereference(id string) bool {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		c.logger.Load().Warn("cache: dereference of unknown id", "id", id)
		return false
	}
	if e.users <= 0 {
		c.mu.Unlock()
		c.underflows.Add(1)
		c.logger.Load().Warn("cache: dereference without reference", "id", id)
		return false
	}
	e.users--
	if e.users > 0 {
		c.mu.Unlock()
		return true
	}
	if e.priority > 0 {
		e.idle = c.idle.PushFront(id)
		c.mu.Unlock()
		return true
	}
	c.removeLocked(id, e)
	c.mu.Unlock()

	c.evicted(id, e.value)
	return true
}

// Lookup returns the value of id without touching its user count.
func (c *RefCache[V]) Lookup(id string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// IsCached reports whether id is present.
func (c *RefCache[V]) IsCached(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// UserCount returns the user count of id.
func (c *RefCache[V]) UserCount(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return e.users, true
}

// SetPriority changes the priority of id. Lowering the priority of an idle
// entry to zero or less evicts it.
func (c *RefCache[V]) SetPriority(id string, priority int) bool {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	e.priority = priority
	switch {
	case e.users > 0:
	case priority > 0:
		if e.idle == nil {
			e.idle = c.idle.PushFront(id)
		}
	default:
		c.removeLocked(id, e)
		c.mu.Unlock()
		c.evicted(id, e.value)
		return true
	}
	c.mu.Unlock()
	return true
}

// Remove evicts id regardless of its user count.
// Outstanding references keep the value but no longer count.
func (c *RefCache[V]) Remove(id string) bool {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if e.users > 0 {
		c.logger.Load().Warn("cache: removing referenced entry", "id", id, "users", e.users)
	}
	c.removeLocked(id, e)
	c.mu.Unlock()
	c.evicted(id, e.value)
	return true
}

// Trim evicts the least recently idled persistent entries until at most
// maxIdle remain idle. It returns the number of evicted entries.
func (c *RefCache[V]) Trim(maxIdle int) int {
	maxIdle = max(maxIdle, 0)
	type victim struct {
		id string
		v  V
	}
	var out []victim

	c.mu.Lock()
	for c.idle.Len() > maxIdle {
		id, _ := c.idle.Oldest()
		e := c.entries[id]
		c.removeLocked(id, e)
		out = append(out, victim{id, e.value})
	}
	c.mu.Unlock()

	for _, v := range out {
		c.evicted(v.id, v.v)
	}
	return len(out)
}

// Clear evicts every entry.
func (c *RefCache[V]) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*refEntry[V])
	c.idle.Clear()
	c.mu.Unlock()

	for id, e := range old {
		c.evicted(id, e.value)
	}
}

// removeLocked deletes e from the map and the idle list. c.mu must be held.
func (c *RefCache[V]) removeLocked(id string, e *refEntry[V]) {
	if e.idle != nil {
		c.idle.Remove(e.idle)
		e.idle = nil
	}
	delete(c.entries, id)
}

func (c *RefCache[V]) evicted(id string, v V) {
	c.evictions.Add(1)
	c.logger.Load().Debug("cache: evicted", "id", id)
	if c.onEvict != nil {
		c.onEvict(id, v)
	}
}

// Len returns the number of cached entries.
func (c *RefCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns current cache statistics.
func (c *RefCache[V]) Stats() Stats {
	c.mu.Lock()
	n, idle := len(c.entries), c.idle.Len()
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:        n,
		Idle:       idle,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
		Evictions:  c.evictions.Load(),
		Underflows: c.underflows.Load(),
	}
}

// ResetStats resets all statistics counters to zero.
func (c *RefCache[V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.underflows.Store(0)
}
