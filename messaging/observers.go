// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "sync"

// Observers is a set of handlers for one event type. Handlers run in
// registration order. Registering and cancelling are safe from any
// goroutine; Notify is called by the owner on its executor.
type Observers[T any] struct {
	mu       sync.Mutex
	next     uint64
	handlers []observer[T]
}

type observer[T any] struct {
	id      uint64
	handler func(T)
}

// Observe registers handler and returns a function that unregisters
// it. Calling the returned function more than once is harmless.
func (o *Observers[T]) Observe(handler func(T)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.handlers = append(o.handlers, observer[T]{id: id, handler: handler})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for index, entry := range o.handlers {
			if entry.id == id {
				o.handlers = append(o.handlers[:index:index], o.handlers[index+1:]...)
				return
			}
		}
	}
}

// Notify calls every registered handler with value. Handlers added or
// removed during Notify take effect from the next call.
func (o *Observers[T]) Notify(value T) {
	o.mu.Lock()
	snapshot := o.handlers
	o.mu.Unlock()
	for _, entry := range snapshot {
		entry.handler(value)
	}
}

// Len returns the number of registered handlers.
func (o *Observers[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handlers)
}
