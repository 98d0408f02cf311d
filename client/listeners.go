package client

import "sync"

// emitter is an ordered listener registry. Listeners fire in registration
// order on the client's dispatch goroutine; the returned function removes
// the listener again.
type emitter[T any] struct {
	mu    sync.Mutex
	seq   uint64
	items []registration[T]
}

type registration[T any] struct {
	id uint64
	fn func(T)
}

func (e *emitter[T]) on(fn func(T)) func() {
	e.mu.Lock()
	e.seq++
	id := e.seq
	e.items = append(e.items, registration[T]{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, reg := range e.items {
			if reg.id == id {
				e.items = append(e.items[:i], e.items[i+1:]...)
				return
			}
		}
	}
}

func (e *emitter[T]) emit(v T) {
	e.mu.Lock()
	fns := make([]func(T), len(e.items))
	for i, reg := range e.items {
		fns[i] = reg.fn
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
