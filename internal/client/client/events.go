package client

import (
	"sort"
	"sync"
)

// emitter fans auth events out to listeners. deliver serializes emissions so
// every listener observes events in the order they were emitted.
type emitter struct {
	mu        sync.Mutex
	deliver   sync.Mutex
	nextID    uint64
	listeners map[uint64]AuthStateListener
}

type subscription struct {
	once sync.Once
	fn   func()
}

func (s *subscription) Unsubscribe() { s.once.Do(s.fn) }

func (e *emitter) subscribe(l AuthStateListener) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[uint64]AuthStateListener)
	}
	e.nextID++
	id := e.nextID
	e.listeners[id] = l

	return &subscription{fn: func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}}
}

func (e *emitter) emit(event AuthChangeEvent, s *Session) {
	e.deliver.Lock()
	defer e.deliver.Unlock()

	e.mu.Lock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ls := make([]AuthStateListener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, e.listeners[id])
	}
	e.mu.Unlock()

	for _, l := range ls {
		l(event, s)
	}
}

func (e *emitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
