package backend

import (
	"fmt"
	"slices"
	"sync"
)

// Driver names registered by this module.
const (
	NameNative = "native"
	NameNull   = "null"
)

// Factory opens a new driver instance.
type Factory func() (Driver, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)

	// Priority order for Default (first that opens wins).
	priority = []string{NameNative, NameNull}
)

// Register registers a driver factory under name.
// This is typically called from init() in driver packages.
// A factory already registered under name is replaced.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a driver factory. Useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered driver names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a driver named name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens the driver registered under name.
func Open(name string) (Driver, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotAvailable, name)
	}
	d, err := f()
	if err != nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, err)
	}
	return d, nil
}

// Default opens the best available driver: native, then null, then any
// other registered driver in name order. Drivers that fail to open are
// skipped.
func Default() (Driver, error) {
	names := Available()
	order := make([]string, 0, len(names))
	for _, n := range priority {
		if slices.Contains(names, n) {
			order = append(order, n)
		}
	}
	for _, n := range names {
		if !slices.Contains(order, n) {
			order = append(order, n)
		}
	}

	var errs []error
	for _, n := range order {
		d, err := Open(n)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNotAvailable
	}
	return nil, fmt.Errorf("%w: %w", ErrNotAvailable, errs[len(errs)-1])
}
