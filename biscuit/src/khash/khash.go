// Package khash is a small generic hash table used for O(1) pid to PCB
// lookup in package proc, replacing the linear list walks the original C
// source does in find_ready_pcb/removePCB and friends. The pipe, lock and
// cvar registries keep their own plain maps and do not use it. Adapted in spirit from the teacher's hashtable/hashtable.go,
// simplified to a single-mutex map since this kernel has no per-core
// sharding concern (no multi-core support).
package khash

import "sync"

// Table maps comparable keys to values behind one mutex.
type Table[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{m: make(map[K]V)}
}

func (t *Table[K, V]) Set(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[k] = v
}

func (t *Table[K, V]) Get(k K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[k]
	return v, ok
}

func (t *Table[K, V]) Del(k K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, k)
}

func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Each calls f for every entry. f must not call back into t.
func (t *Table[K, V]) Each(f func(K, V)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, v := range t.m {
		f(k, v)
	}
}
