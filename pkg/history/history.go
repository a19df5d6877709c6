// Package history remembers which bot response belongs to which source message, so an edit can
// replace the earlier rendering and a reverted message can have its rendering retracted.
package history

import (
	"errors"
	"sync"

	"mathbot/pkg/bus"
)

// ErrSuperseded is returned by Commit when a newer render of the same source began, or the
// source was forgotten, after the ticket was issued.
var ErrSuperseded = errors.New("render superseded by a newer event")

// Ticket marks one in-flight render of a source message.
type Ticket struct {
	Source bus.MessageRef
	seq    uint64
}

// Store maps source messages to the response currently shown for them. At most one response is
// recorded per source. It is safe for concurrent use and lives only in memory.
type Store struct {
	mu      sync.Mutex
	entries map[bus.MessageRef]bus.MessageRef
	pending map[bus.MessageRef]uint64
	seq     uint64
}

func New() *Store {
	return &Store{
		entries: make(map[bus.MessageRef]bus.MessageRef),
		pending: make(map[bus.MessageRef]uint64),
	}
}

// Lookup returns the response recorded for source.
func (s *Store) Lookup(source bus.MessageRef) (bus.MessageRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, ok := s.entries[source]
	return response, ok
}

// Record stores response for source, overwriting any previous association.
func (s *Store) Record(source bus.MessageRef, response bus.MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[source] = response
}

// Replace records response for source and returns the association it displaced.
func (s *Store) Replace(source bus.MessageRef, response bus.MessageRef) (bus.MessageRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.entries[source]
	s.entries[source] = response
	return previous, ok
}

// Forget removes and returns the association for source. Forgetting an unknown source is a
// no-op. Renders of source that are still in flight will fail to commit.
func (s *Store) Forget(source bus.MessageRef) (bus.MessageRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, ok := s.entries[source]
	delete(s.entries, source)
	if _, inFlight := s.pending[source]; inFlight {
		s.seq++
		s.pending[source] = s.seq
	}
	return response, ok
}

// Begin issues a ticket for a new render of source. Earlier tickets for the same source can no
// longer commit.
func (s *Store) Begin(source bus.MessageRef) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.pending[source] = s.seq
	return Ticket{Source: source, seq: s.seq}
}

// Commit records response for the ticket's source and returns the association it displaced.
// When the ticket is stale nothing changes and ErrSuperseded is returned; the caller owns the
// orphaned response.
func (s *Store) Commit(ticket Ticket, response bus.MessageRef) (bus.MessageRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.pending[ticket.Source]; !ok || current != ticket.seq {
		return bus.MessageRef{}, false, ErrSuperseded
	}
	delete(s.pending, ticket.Source)

	previous, ok := s.entries[ticket.Source]
	s.entries[ticket.Source] = response
	return previous, ok, nil
}

// Abandon releases a ticket whose render produced no response.
func (s *Store) Abandon(ticket Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.pending[ticket.Source]; ok && current == ticket.seq {
		delete(s.pending, ticket.Source)
	}
}

// Current reports whether ticket is still the newest render of its source.
func (s *Store) Current(ticket Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.pending[ticket.Source]
	return ok && current == ticket.seq
}

// Len returns the number of recorded associations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
