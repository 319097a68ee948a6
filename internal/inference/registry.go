package inference

import (
	"sync"

	"github.com/taskcouncil/engine/internal/ids"
)

// ownerEndpoint is the only state the registry shares across goroutines
// for a loaded model: an identity and a channel. Neither grants access to
// the native handle itself (spec §9's core invariant).
type ownerEndpoint struct {
	ownerID string
	inbox   chan<- inferenceMessage
}

// Registry is the process-wide map from ModelRef to owner-thread
// messaging endpoint (spec §4.1, §5). Writes (load/unload) take a brief
// exclusive lock; reads are lock-free-ish via RWMutex.RLock, which is the
// idiomatic Go approximation of "read-mostly, lock-free reads" for a map
// that cannot be safely read without *some* synchronization against
// concurrent writers.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[ids.ModelRef]ownerEndpoint
	byHash    map[uint64]ids.ModelRef // descriptor hash -> ref, for load dedup
}

func newRegistry() *Registry {
	return &Registry{
		endpoints: make(map[ids.ModelRef]ownerEndpoint),
		byHash:    make(map[uint64]ids.ModelRef),
	}
}

func (r *Registry) lookup(ref ids.ModelRef) (ownerEndpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[ref]
	return ep, ok
}

func (r *Registry) lookupByHash(hash uint64) (ids.ModelRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.byHash[hash]
	return ref, ok
}

func (r *Registry) register(ref ids.ModelRef, hash uint64, ep ownerEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ref] = ep
	r.byHash[hash] = ref
}

func (r *Registry) unregister(ref ids.ModelRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, ref)
	for h, v := range r.byHash {
		if v == ref {
			delete(r.byHash, h)
		}
	}
}

// unregisterOwner removes every ModelRef owned by ownerID — used when an
// owner goroutine crashes (spec §4.1 Failure model: "the registry entry
// is removed").
func (r *Registry) unregisterOwner(ownerID string) []ids.ModelRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []ids.ModelRef
	for ref, ep := range r.endpoints {
		if ep.ownerID == ownerID {
			removed = append(removed, ref)
			delete(r.endpoints, ref)
		}
	}
	for h, v := range r.byHash {
		for _, ref := range removed {
			if v == ref {
				delete(r.byHash, h)
			}
		}
	}
	return removed
}

// Loaded reports whether ref currently resolves to a live owner. Exposed
// for tests and for §8 invariant 6 ("after a successful unload_model, no
// subsequent enqueue_inference for that ref succeeds").
func (r *Registry) Loaded(ref ids.ModelRef) bool {
	_, ok := r.lookup(ref)
	return ok
}
