// Package events is a typed publish/subscribe registry.
//
// Synchronous subscribers run in registration order on the publisher's
// goroutine, so a plant's process loop delivers them in frame order and
// waits for each. Async subscribers run on their own goroutine and never
// hold up the publisher.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Handler receives one published value. Errors are logged.
type Handler[T any] func(ctx context.Context, v T) error

type subscriber[T any] struct {
	id    uint64
	fn    Handler[T]
	async bool
}

// Event is one named hook carrying values of type T.
type Event[T any] struct {
	name   string
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]

	inflight sync.WaitGroup
}

// New creates an event.
func New[T any](name string, logger *slog.Logger) *Event[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Event[T]{
		name:   name,
		logger: logger.With("event", name),
	}
}

// Name returns the event name.
func (e *Event[T]) Name() string {
	return e.name
}

// Subscribe adds a handler invoked in turn with publishing. The returned
// function removes it.
func (e *Event[T]) Subscribe(fn Handler[T]) func() {
	return e.add(fn, false)
}

// SubscribeAsync adds a handler invoked on its own goroutine.
func (e *Event[T]) SubscribeAsync(fn Handler[T]) func() {
	return e.add(fn, true)
}

func (e *Event[T]) add(fn Handler[T], async bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscriber[T]{id: id, fn: fn, async: async})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.subs = slices.DeleteFunc(e.subs, func(s subscriber[T]) bool { return s.id == id })
		})
	}
}

// Len returns the number of subscribers.
func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Publish delivers v to every subscriber.
func (e *Event[T]) Publish(ctx context.Context, v T) {
	e.mu.RLock()
	subs := slices.Clone(e.subs)
	e.mu.RUnlock()

	for _, s := range subs {
		if s.async {
			e.inflight.Add(1)
			go func() {
				defer e.inflight.Done()
				e.call(ctx, s.fn, v)
			}()
			continue
		}
		e.call(ctx, s.fn, v)
	}
}

// Wait blocks until async handlers started so far have returned.
func (e *Event[T]) Wait() {
	e.inflight.Wait()
}

func (e *Event[T]) call(ctx context.Context, fn Handler[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("subscriber panicked", "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(ctx, v); err != nil {
		e.logger.Warn("subscriber failed", "error", err)
	}
}
