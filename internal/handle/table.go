// Package handle maps opaque integer tokens to Go-owned values.
//
// A token is what crosses an API boundary in place of the value itself. The
// table performs no reference counting: a token is valid from Put until the
// matching Delete and never again.
package handle

import (
	"fmt"
	"sync"
)

// Handle is an opaque token. The zero Handle is never issued and stands for
// "no value".
type Handle uintptr

// Table is a goroutine-safe map from handles to values.
type Table[T any] struct {
	mu     sync.Mutex
	next   Handle
	values map[Handle]T
}

// NewTable returns an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{values: make(map[Handle]T)}
}

// Put stores v and returns a fresh non-zero handle for it.
func (t *Table[T]) Put(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	if t.next == 0 {
		t.next++
	}
	h := t.next
	t.values[h] = v
	return h
}

// Get returns the value for h. It panics when h is not live, mirroring
// runtime/cgo.Handle: using a released handle is a caller bug.
func (t *Table[T]) Get(h Handle) T {
	v, ok := t.Lookup(h)
	if !ok {
		panic(fmt.Sprintf("handle: invalid handle %d", h))
	}
	return v
}

// Lookup returns the value for h and whether h is live.
func (t *Table[T]) Lookup(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[h]
	return v, ok
}

// Delete releases h and returns the value it referred to. It panics when h is
// not live.
func (t *Table[T]) Delete(h Handle) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[h]
	if !ok {
		panic(fmt.Sprintf("handle: invalid handle %d", h))
	}
	delete(t.values, h)
	return v
}

// Len reports the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.values)
}
