package resource

import "fmt"

// State is the lifecycle state of a Handle.
//
// The legal transitions are:
//
//	Uninitialized -> Initialized | Released | Disposed
//	Initialized   -> Updated | Retiring | Released
//	Updated       -> Stale | Retiring | Released
//	Stale         -> Updated | Retiring | Released
//	Retiring      -> Released
//	Released      -> Disposed
//
// Initialized and Stale both mean "needs an update"; Updated means the
// GPU copy reflects the CPU-side state. Retiring is a live resource whose
// Dispose was requested and whose release is queued.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateUpdated
	StateStale
	StateRetiring
	StateReleased
	StateDisposed

	stateCount
)

var stateNames = [stateCount]string{
	StateUninitialized: "Uninitialized",
	StateInitialized:   "Initialized",
	StateUpdated:       "Updated",
	StateStale:         "Stale",
	StateRetiring:      "Retiring",
	StateReleased:      "Released",
	StateDisposed:      "Disposed",
}

// String returns the name of the state.
func (s State) String() string {
	if s >= 0 && s < stateCount {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Live reports whether a resource in state s may still be initialized or updated.
func (s State) Live() bool {
	return s == StateInitialized || s == StateUpdated || s == StateStale
}

// Terminal reports whether s is Released or Disposed.
func (s State) Terminal() bool {
	return s == StateReleased || s == StateDisposed
}

const (
	bit = 1

	fromUninitialized = bit<<StateInitialized | bit<<StateReleased | bit<<StateDisposed
	fromInitialized   = bit<<StateUpdated | bit<<StateRetiring | bit<<StateReleased
	fromUpdated       = bit<<StateStale | bit<<StateRetiring | bit<<StateReleased
	fromStale         = bit<<StateUpdated | bit<<StateRetiring | bit<<StateReleased
	fromRetiring      = bit << StateReleased
	fromReleased      = bit << StateDisposed
)

// transitions[from] has bit `to` set when from -> to is legal.
var transitions = [stateCount]uint32{
	StateUninitialized: fromUninitialized,
	StateInitialized:   fromInitialized,
	StateUpdated:       fromUpdated,
	StateStale:         fromStale,
	StateRetiring:      fromRetiring,
	StateReleased:      fromReleased,
	StateDisposed:      0,
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	if from < 0 || from >= stateCount || to < 0 || to >= stateCount {
		return false
	}
	return transitions[from]&(bit<<to) != 0
}
