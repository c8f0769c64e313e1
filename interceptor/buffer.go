package interceptor

import "sync"

// Buffer is a bounded keyed store written by the response callback and
// polled by the phase loop. Keys keep insertion order; when full, the oldest
// key is evicted. Values are copied in and out so readers never share memory
// with the writer.
type Buffer[T any] struct {
	mu       sync.Mutex
	capacity int
	order    []string
	items    map[string]T
	merge    func(existing *T, incoming T)
}

// NewBuffer creates a buffer. merge, if non-nil, folds a later value for an
// existing key into the stored one; otherwise the later value replaces it.
func NewBuffer[T any](capacity int, merge func(existing *T, incoming T)) *Buffer[T] {
	return &Buffer[T]{
		capacity: capacity,
		items:    make(map[string]T),
		merge:    merge,
	}
}

// Put inserts or merges v under key. Empty keys are ignored.
func (b *Buffer[T]) Put(key string, v T) {
	if key == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.items[key]; ok {
		if b.merge != nil {
			b.merge(&existing, v)
			b.items[key] = existing
		} else {
			b.items[key] = v
		}
		return
	}

	if b.capacity > 0 && len(b.order) >= b.capacity {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.items, oldest)
	}
	b.order = append(b.order, key)
	b.items[key] = v
}

// Get returns a copy of the value stored under key.
func (b *Buffer[T]) Get(key string) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.items[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (b *Buffer[T]) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Delete drops key if present.
func (b *Buffer[T]) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[key]; !ok {
		return
	}
	delete(b.items, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Reset empties the buffer.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = nil
	b.items = make(map[string]T)
}
