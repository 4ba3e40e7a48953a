package backend

import "sync"

// registryKey identifies one adapter instance.
type registryKey struct {
	kind     Kind
	instance string
}

// registryEntry guards the one-time construction of a single adapter.
type registryEntry struct {
	once    sync.Once
	adapter Adapter
	err     error
}

// Registry caches one adapter per (kind, instance) pair for its lifetime.
// Construction under concurrent first access happens at most once per
// key, and readers of different keys never block each other. The registry
// has an explicit lifetime: it is created by the composition root and
// passed down, never held as ambient global state.
type Registry struct {
	mu      sync.RWMutex
	entries map[registryKey]*registryEntry
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[registryKey]*registryEntry)}
}

// Get returns the cached adapter for (kind, instance), constructing it
// with build on first access. Concurrent first accesses share a single
// build call. A failed build is not cached: the entry is dropped so a
// later Get may retry construction.
func (r *Registry) Get(
	kind Kind,
	instance string,
	build func() (Adapter, error),
) (Adapter, error) {
	key := registryKey{kind: kind, instance: instance}

	r.mu.RLock()
	entry := r.entries[key]
	r.mu.RUnlock()

	if entry == nil {
		r.mu.Lock()
		entry = r.entries[key]
		if entry == nil {
			entry = &registryEntry{}
			r.entries[key] = entry
		}
		r.mu.Unlock()
	}

	entry.once.Do(func() {
		entry.adapter, entry.err = build()
	})

	if entry.err != nil {
		r.mu.Lock()
		if r.entries[key] == entry {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return nil, entry.err
	}

	return entry.adapter, nil
}

// Len reports how many adapters are currently cached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset discards every cached adapter. Callers needing fresh memoized
// lookups inside an adapter discard it this way and reconstruct.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[registryKey]*registryEntry)
}
