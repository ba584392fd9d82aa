package backend

import (
	"errors"
	"slices"
	"sync"
)

// Factory creates a new backend instance.
type Factory func() Backend

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)

	// priority lists the preferred backends, best first. Backends not listed
	// follow in name order.
	priority = []string{BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name, replacing any
// factory already registered under it. Backend packages call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in selection order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return orderedLocked()
}

// orderedLocked returns the registered names, prioritized ones first.
// The caller holds registryMu.
func orderedLocked() []string {
	names := make([]string, 0, len(backends))
	for _, name := range priority {
		if _, ok := backends[name]; ok {
			names = append(names, name)
		}
	}
	rest := make([]string, 0, len(backends))
	for name := range backends {
		if !slices.Contains(priority, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a new instance of the named backend, or nil if none is
// registered under name.
func Get(name string) Backend {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return factory()
}

// Default returns an uninitialized instance of the first backend in
// selection order, or nil if the registry is empty.
func Default() Backend {
	for _, name := range Available() {
		if b := Get(name); b != nil {
			return b
		}
	}
	return nil
}

// MustDefault returns the default backend or panics.
func MustDefault() Backend {
	b := Default()
	if b == nil {
		panic("backend: no backend available")
	}
	return b
}

// InitDefault initializes backends in selection order and returns the first
// one whose Init succeeds. A GPU backend that cannot open a device falls
// through to the next.
func InitDefault() (Backend, error) {
	var errs []error
	for _, name := range Available() {
		b := Get(name)
		if b == nil {
			continue
		}
		if err := b.Init(); err != nil {
			errs = append(errs, err)
			continue
		}
		return b, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
	}
	return nil, ErrBackendNotAvailable
}
