// Package observer provides a typed publish/subscribe topic used for
// session and monitor events.
package observer

import "sync"

// Topic fans a value out to every subscribed listener.
// Listeners run on the emitting goroutine, in subscription order.
// The zero value is ready to use.
type Topic[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []entry[T]
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is idempotent.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, entry[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(id) })
	}
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.listeners {
		if e.id == id {
			t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
			return
		}
	}
}

// Emit delivers v to a snapshot of the current listeners.
// Listeners may subscribe or unsubscribe from inside a callback.
func (t *Topic[T]) Emit(v T) {
	t.mu.RLock()
	snapshot := t.listeners
	t.mu.RUnlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

// Len returns the number of subscribed listeners.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners)
}
