package realtime

import (
	"sort"
	"sync"
)

// keyedState holds one value per key, each guarded by its own lock.
// Operations on different keys never contend beyond the map lookup.
type keyedState[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*keyedEntry[V]
}

type keyedEntry[V any] struct {
	mu      sync.Mutex
	removed bool
	val     V
}

func newKeyedState[K comparable, V any]() *keyedState[K, V] {
	return &keyedState[K, V]{entries: make(map[K]*keyedEntry[V])}
}

// update runs fn with the entry for key locked, creating it when absent.
// When fn returns true the entry is discarded.
func (k *keyedState[K, V]) update(key K, fn func(v *V) (remove bool)) {
	for {
		k.mu.Lock()
		e, ok := k.entries[key]
		if !ok {
			e = &keyedEntry[V]{}
			k.entries[key] = e
		}
		k.mu.Unlock()

		e.mu.Lock()
		if e.removed {
			// Lost a race with a removal; the map now holds a fresh entry.
			e.mu.Unlock()
			continue
		}
		if fn(&e.val) {
			e.removed = true
			k.mu.Lock()
			if k.entries[key] == e {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		}
		e.mu.Unlock()
		return
	}
}

// view runs fn with the entry for key locked. Absent keys are not created
// and fn is not called.
func (k *keyedState[K, V]) view(key K, fn func(v *V)) {
	k.mu.Lock()
	e, ok := k.entries[key]
	k.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.removed {
		fn(&e.val)
	}
}

func (k *keyedState[K, V]) keys() []K {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys := make([]K, 0, len(k.entries))
	for key := range k.entries {
		keys = append(keys, key)
	}
	return keys
}

func sortInt64s(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
