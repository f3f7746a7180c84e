package resource

import (
	"sync/atomic"
	"weak"
)

// ID identifies a registered Handle within its Manager.
// The zero ID is never assigned.
type ID uint32

// InvalidID is the ID of a Handle that is not registered.
const InvalidID ID = 0

// Lifecycle holds the hooks a concrete resource supplies to its Handle.
//
// Any hook may be nil. A nil Initialize marks the resource as self-managed:
// it is not registered with the Manager and starts out initialized.
// Whether Update is nil is fixed at construction; a resource without an
// updater never becomes stale.
type Lifecycle struct {
	// Initialize creates the driver-side object.
	Initialize func() error
	// Update uploads the current CPU-side state.
	Update func() error
	// Release destroys the driver-side object.
	Release func() error
	// Invalidated is called on every Invalidate of a live handle,
	// whether or not the handle was queued for update.
	Invalidated func()
}

// Handle is the lifecycle unit shared by every GPU-backed resource.
//
// State transitions are compare-and-swap on a single atomic state, so each
// hook runs at most once per transition no matter which goroutine requests it.
// The hooks themselves only ever run from Manager.Process or EnsureReady,
// which must be called on the render goroutine.
type Handle struct {
	name  string
	lc    Lifecycle
	state atomic.Int32
	id    atomic.Uint32

	// disposing guards the one-shot Unregister performed by Dispose.
	disposing atomic.Bool

	// manager is a non-owning reference; the manager's registry owns handles.
	manager weak.Pointer[Manager]

	err atomic.Pointer[error]
}

// NewHandle creates a handle named name driven by lc.
//
// If lc.Initialize is set and m is not nil, the handle is registered with m
// and will be initialized on the next Process. Otherwise the handle is
// self-managed and starts in StateInitialized.
func NewHandle(m *Manager, name string, lc Lifecycle) *Handle {
	h := &Handle{name: name, lc: lc}
	if m != nil {
		h.manager = weak.Make(m)
	}
	switch {
	case lc.Initialize == nil:
		h.state.Store(int32(StateInitialized))
	case m == nil:
		// Unmanaged but initializable: EnsureReady will run it.
	default:
		m.Register(h)
	}
	return h
}

// Name returns the debug name of h.
func (h *Handle) Name() string { return h.name }

// ID returns the registry ID of h, or InvalidID if h is not registered.
func (h *Handle) ID() ID { return ID(h.id.Load()) }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// HasUpdater reports whether h was constructed with an update hook.
func (h *Handle) HasUpdater() bool { return h.lc.Update != nil }

// Err returns the last error reported by a lifecycle hook, if any.
func (h *Handle) Err() error {
	if p := h.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Disposed reports whether Dispose was called or initialization failed.
func (h *Handle) Disposed() bool {
	return h.disposing.Load() || h.State() == StateDisposed
}

func (h *Handle) transition(from, to State) bool {
	if !CanTransition(from, to) {
		return false
	}
	return h.state.CompareAndSwap(int32(from), int32(to))
}

func (h *Handle) setErr(err error) {
	h.err.Store(&err)
}

func (h *Handle) owner() *Manager { return h.manager.Value() }

// TryInitialize runs the initializer once.
//
// A second call returns true without side effects. If the initializer fails,
// h is released immediately and permanently marked disposed; the call and
// every later call return false, and Err reports the initializer's error.
func (h *Handle) TryInitialize() bool {
	if !h.transition(StateUninitialized, StateInitialized) {
		s := h.State()
		return s.Live()
	}
	if h.lc.Initialize == nil {
		return true
	}
	if err := h.lc.Initialize(); err != nil {
		// Release may record its own error; the init cause wins.
		h.TryRelease()
		h.setErr(err)
		h.state.Store(int32(StateDisposed))
		return false
	}
	return true
}

// TryUpdate runs the updater if h needs an update.
//
// It returns true if h is up to date afterwards. A handle without an
// updater is always up to date while it is live. TryUpdate never runs the
// updater once release has started.
func (h *Handle) TryUpdate() bool {
	if !h.HasUpdater() {
		return h.State().Live()
	}
	for {
		s := h.State()
		switch s {
		case StateInitialized, StateStale:
			// The state flips before the hook runs so that an
			// Invalidate racing with the upload is not lost.
			if !h.transition(s, StateUpdated) {
				continue
			}
			if err := h.lc.Update(); err != nil {
				h.setErr(err)
				return false
			}
			return true
		case StateUpdated:
			return true
		default:
			return false
		}
	}
}

// TryRelease moves h to StateReleased and runs the releaser.
//
// The releaser only runs if h had been initialized. It returns false if
// h was already released or the releaser failed.
func (h *Handle) TryRelease() bool {
	for {
		s := h.State()
		switch s {
		case StateUninitialized:
			if !h.transition(s, StateReleased) {
				continue
			}
			h.settle()
			return true
		case StateInitialized, StateUpdated, StateStale, StateRetiring:
			if !h.transition(s, StateReleased) {
				continue
			}
			var err error
			if h.lc.Release != nil {
				err = h.lc.Release()
			}
			h.settle()
			if err != nil {
				h.setErr(err)
				return false
			}
			return true
		default:
			return false
		}
	}
}

// settle finishes a release requested through Dispose.
func (h *Handle) settle() {
	if h.disposing.Load() {
		h.transition(StateReleased, StateDisposed)
	}
}

// Invalidate marks h stale and queues it for update.
//
// Only an Updated handle is queued, so repeated invalidation within a tick
// queues it once. The Invalidated hook runs on every call until h is disposed.
func (h *Handle) Invalidate() {
	s := h.State()
	if h.disposing.Load() || s >= StateRetiring {
		return
	}
	if s == StateUpdated && h.HasUpdater() && h.transition(StateUpdated, StateStale) {
		if m := h.owner(); m != nil {
			m.DeferUpdate(h)
		}
	}
	if h.lc.Invalidated != nil {
		h.lc.Invalidated()
	}
}

// EnsureReady initializes and updates h immediately, bypassing the queues.
// It must be called on the render goroutine.
func (h *Handle) EnsureReady() bool {
	return h.TryInitialize() && h.TryUpdate()
}

// Dispose unregisters h and queues its release.
//
// Dispose is idempotent: only the first call unregisters. Updates are
// suppressed from the moment Dispose returns.
func (h *Handle) Dispose() {
	if !h.disposing.CompareAndSwap(false, true) {
		return
	}
	for {
		s := h.State()
		var to State
		switch {
		case s == StateUninitialized:
			to = StateDisposed
		case s.Live():
			to = StateRetiring
		case s == StateReleased:
			to = StateDisposed
		default:
			to = s
		}
		if to == s || h.state.CompareAndSwap(int32(s), int32(to)) {
			break
		}
	}

	m := h.owner()
	switch {
	case m != nil && h.ID() != InvalidID:
		m.Unregister(h)
	case m != nil:
		m.deferRelease(h)
	default:
		h.TryRelease()
	}
}
