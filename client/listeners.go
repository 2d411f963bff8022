package client

import (
	"sync"

	"github.com/luma/mrcp/protocol"
)

// EventListener is notified of every event received on a channel.
type EventListener interface {
	EventReceived(event *protocol.Event)
}

type EventListenerFunc func(event *protocol.Event)

func (f EventListenerFunc) EventReceived(event *protocol.Event) {
	f(event)
}

// ResponseListener is notified of every response received on a channel,
// whichever request it answers.
type ResponseListener interface {
	ResponseReceived(resp *protocol.Response)
}

type ResponseListenerFunc func(resp *protocol.Response)

func (f ResponseListenerFunc) ResponseReceived(resp *protocol.Response) {
	f(resp)
}

type listenerEntry[T any] struct {
	id       uint64
	listener T
}

// listenerSet is a copy-on-write list of listeners. Dispatch iterates a
// snapshot, so listeners may add or remove listeners (themselves included)
// while being called.
type listenerSet[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry[T]
}

// add registers listener and returns a function that removes it again. The
// returned function is idempotent.
func (s *listenerSet[T]) add(listener T) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	entries := make([]listenerEntry[T], len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)
	s.entries = append(entries, listenerEntry[T]{id: id, listener: listener})

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *listenerSet[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]listenerEntry[T], 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.id != id {
			entries = append(entries, entry)
		}
	}
	s.entries = entries
}

func (s *listenerSet[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	listeners := make([]T, len(s.entries))
	for i, entry := range s.entries {
		listeners[i] = entry.listener
	}

	return listeners
}
