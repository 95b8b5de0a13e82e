package session

import (
	"sort"
	"sync"
)

type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*State
	nextOrder int
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*State),
	}
}

func (s *Store) Get(id string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	copy := *st
	return &copy, true
}

// GetAll returns copies of every session in insertion order.
func (s *Store) GetAll() []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*State, 0, len(s.sessions))
	for _, st := range s.sessions {
		copy := *st
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Order < result[j].Order
	})
	return result
}

func (s *Store) Update(state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[state.ID]; ok {
		state.Order = existing.Order
	} else {
		state.Order = s.nextOrder
		s.nextOrder++
	}
	copy := *state
	s.sessions[state.ID] = &copy
}

// Mutate applies fn to the stored session under the write lock and returns
// a copy of the result. fn must not retain its argument.
func (s *Store) Mutate(id string, fn func(*State)) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	fn(st)
	copy := *st
	return &copy, true
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) EnabledCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.sessions {
		if st.Enabled {
			count++
		}
	}
	return count
}
