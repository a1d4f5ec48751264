// Package positions provides the in-memory position tracker used by a bot
// worker. The store owns its locking so callers never coordinate access.
package positions

import (
	"sync"

	"sentinelbot/internal/domain"
)

// Store tracks open positions keyed by trading pair. The zero value is not
// usable; construct with NewStore.
type Store struct {
	mu     sync.RWMutex
	byPair map[string]domain.Position
}

// NewStore creates an empty position store.
func NewStore() *Store {
	return &Store{byPair: make(map[string]domain.Position)}
}

// Get returns the open position for a pair, if any.
func (s *Store) Get(pair string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.byPair[pair]
	return pos, ok
}

// Set creates or overwrites the position for the position's pair.
func (s *Store) Set(pos domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPair[pos.Pair] = pos
}

// Delete removes the position for a pair. Deleting an absent pair is a no-op.
func (s *Store) Delete(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPair, pair)
}

// All returns a snapshot of every open position.
func (s *Store) All() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.byPair))
	for _, pos := range s.byPair {
		out = append(out, pos)
	}
	return out
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPair)
}
