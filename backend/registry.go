package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an unconnected Adapter from a Config. The returned adapter
// must defer real I/O to Connect.
type Factory func(cfg Config) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under tag. It is intended to be called
// from the init function of a backend implementation package, mirroring
// database/sql driver registration. Registering the same tag twice panics.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("backend: Register with nil factory")
	}
	if _, dup := registry[tag]; dup {
		panic("backend: Register called twice for " + tag)
	}
	registry[tag] = f
}

// Open builds the adapter registered under tag. The adapter is not yet
// connected.
func Open(tag string, cfg Config) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: unknown backend %q (forgotten import?); registered: %v", tag, Tags())
	}
	return f(cfg)
}

// Tags returns the sorted list of registered backend tags.
func Tags() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
