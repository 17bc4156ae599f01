// SPDX-License-Identifier: MPL-2.0

// Package event provides the synchronous notification hook the loader fires
// at its extension points. Payloads are pointers to mutable structs, so a
// listener can replace the data the loader continues with.
package event

import (
	"reflect"
	"sync"
)

type (
	// Dispatcher delivers an event to its listeners before returning.
	Dispatcher interface {
		Dispatch(event any)
	}

	// DispatcherFunc adapts a function to the Dispatcher interface.
	DispatcherFunc func(event any)

	// Bus routes events to listeners subscribed to the event's dynamic type.
	// Listeners run in subscription order. It is safe for concurrent use.
	Bus struct {
		mu        sync.RWMutex
		listeners map[reflect.Type][]listener
		nextID    uint64
	}

	listener struct {
		id uint64
		fn func(any)
	}
)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(event any) { f(event) }

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[reflect.Type][]listener)}
}

// Subscribe registers fn for events of type T and returns a function that
// removes the subscription again.
func Subscribe[T any](b *Bus, fn func(T)) (unsubscribe func()) {
	typ := reflect.TypeFor[T]()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[typ] = append(b.listeners[typ], listener{
		id: id,
		fn: func(e any) { fn(e.(T)) },
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		kept := b.listeners[typ][:0]
		for _, l := range b.listeners[typ] {
			if l.id != id {
				kept = append(kept, l)
			}
		}
		b.listeners[typ] = kept
	}
}

// Dispatch implements Dispatcher. Events nobody subscribed to are dropped.
func (b *Bus) Dispatch(event any) {
	if event == nil {
		return
	}
	b.mu.RLock()
	ls := append([]listener(nil), b.listeners[reflect.TypeOf(event)]...)
	b.mu.RUnlock()

	for _, l := range ls {
		l.fn(event)
	}
}
