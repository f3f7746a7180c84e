package resource

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// ProcessStats counts what one Process call did.
type ProcessStats struct {
	Initialized int
	Updated     int
	Released    int
	Failed      int
}

// Manager owns the lifecycle queues and the registry of live handles.
//
// Register, Unregister and DeferUpdate are safe from any goroutine.
// Process must only be called from the render goroutine.
type Manager struct {
	mu   sync.Mutex
	live map[ID]*Handle
	next ID
	free []ID

	initQueue    Queue[*Handle]
	updateQueue  Queue[*Handle]
	releaseQueue Queue[*Handle]

	logger atomic.Pointer[slog.Logger]
}

// NewManager creates an empty manager.
// A nil logger disables logging.
func NewManager(logger *slog.Logger) *Manager {
	m := &Manager{
		live: make(map[ID]*Handle),
		next: 1,
	}
	m.SetLogger(logger)
	return m
}

// SetLogger replaces the manager's logger. Nil disables logging.
func (m *Manager) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	m.logger.Store(l)
}

// Log returns the manager's current logger.
func (m *Manager) Log() *slog.Logger { return m.logger.Load() }

// allocID returns a free ID, preferring recycled ones.
// m.mu must be held.
func (m *Manager) allocID() ID {
	if n := len(m.free); n > 0 {
		id := m.free[n-1]
		m.free = m.free[:n-1]
		return id
	}
	id := m.next
	m.next++
	return id
}

// Register adds h to the registry and queues it for initialization.
// Registering an already registered handle returns its existing ID.
func (m *Manager) Register(h *Handle) ID {
	m.mu.Lock()
	if id := h.ID(); id != InvalidID {
		m.mu.Unlock()
		return id
	}
	id := m.allocID()
	h.id.Store(uint32(id))
	m.live[id] = h
	m.mu.Unlock()

	m.initQueue.Push(h)
	return id
}

// Unregister removes h from the registry and queues its release.
// It returns false if h is not registered with m.
func (m *Manager) Unregister(h *Handle) bool {
	if !m.forget(h) {
		m.Log().Warn("resource: unregister of unknown handle", "name", h.Name())
		return false
	}
	m.releaseQueue.Push(h)
	return true
}

// UnregisterID is like Unregister but looks the handle up by ID.
func (m *Manager) UnregisterID(id ID) bool {
	h, ok := m.Lookup(id)
	if !ok {
		m.Log().Warn("resource: unregister of unknown id", "id", id)
		return false
	}
	return m.Unregister(h)
}

// forget removes h from the registry and recycles its ID.
func (m *Manager) forget(h *Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := h.ID()
	if id == InvalidID || m.live[id] != h {
		return false
	}
	delete(m.live, id)
	h.id.Store(uint32(InvalidID))
	m.free = append(m.free, id)
	return true
}

// DeferUpdate queues h for update on the next Process.
func (m *Manager) DeferUpdate(h *Handle) {
	m.updateQueue.Push(h)
}

// deferRelease queues an unregistered handle for release.
func (m *Manager) deferRelease(h *Handle) {
	m.releaseQueue.Push(h)
}

// Lookup returns the live handle registered under id.
func (m *Manager) Lookup(id ID) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.live[id]
	return h, ok
}

// Contains reports whether h is currently registered.
func (m *Manager) Contains(h *Handle) bool {
	got, ok := m.Lookup(h.ID())
	return ok && got == h
}

// Len returns the number of registered handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Handles returns a snapshot of the registered handles in ID order.
func (m *Manager) Handles() []*Handle {
	m.mu.Lock()
	out := make([]*Handle, 0, len(m.live))
	for _, h := range m.live {
		out = append(out, h)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b *Handle) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// Pending returns the lengths of the init, update and release queues.
func (m *Manager) Pending() (initN, updateN, releaseN int) {
	return m.initQueue.Len(), m.updateQueue.Len(), m.releaseQueue.Len()
}

// Process drains the init queue, then the update queue, then the release
// queue. Handles that finish initialization during this call and have an
// updater are updated in the same call.
//
// A failing handle is logged and dropped; it never stops the tick.
func (m *Manager) Process() ProcessStats {
	var st ProcessStats
	log := m.Log()

	for _, h := range m.initQueue.Drain() {
		if h.State() != StateUninitialized {
			continue
		}
		if !h.TryInitialize() {
			st.Failed++
			log.Warn("resource: initialization failed", "name", h.Name(), "err", h.Err())
			m.forget(h)
			continue
		}
		st.Initialized++
		log.Debug("resource: initialized", "name", h.Name(), "id", h.ID())
		if h.HasUpdater() {
			m.updateQueue.Push(h)
		}
	}

	for _, h := range m.updateQueue.Drain() {
		switch h.State() {
		case StateInitialized, StateStale:
		default:
			continue
		}
		if !h.TryUpdate() {
			st.Failed++
			log.Warn("resource: update failed", "name", h.Name(), "err", h.Err())
			continue
		}
		st.Updated++
	}

	for _, h := range m.releaseQueue.Drain() {
		if h.State().Terminal() {
			continue
		}
		if !h.TryRelease() {
			st.Failed++
			log.Warn("resource: release failed", "name", h.Name(), "err", h.Err())
			continue
		}
		st.Released++
		log.Debug("resource: released", "name", h.Name())
	}
	return st
}
