package thinkgear

import "sync"

// listeners is a copy-on-write callback list. emit works on a snapshot, so
// callbacks may be added or removed while an emit is running.
type listeners[T any] struct {
	mu   sync.Mutex
	next int
	fns  []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	l.next++
	id := l.next
	fns := make([]listener[T], len(l.fns), len(l.fns)+1)
	copy(fns, l.fns)
	l.fns = append(fns, listener[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[T]) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fns := make([]listener[T], 0, len(l.fns))
	for _, x := range l.fns {
		if x.id != id {
			fns = append(fns, x)
		}
	}
	l.fns = fns
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	fns := l.fns
	l.mu.Unlock()
	for _, x := range fns {
		x.fn(v)
	}
}
