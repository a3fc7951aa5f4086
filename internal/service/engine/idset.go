package engine

import "sync"

// idSet is a set of item ids safe for concurrent use. Membership checks and
// mutations are atomic relative to each other.
type idSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{ids: make(map[string]struct{})}
}

func (s *idSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids[id] = struct{}{}
}

// TryAdd adds id and reports false when it was already present.
func (s *idSet) TryAdd(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}

	s.ids[id] = struct{}{}

	return true
}

// TryAddBelow adds id only while the set holds fewer than limit ids.
// exists is true when id was already present.
func (s *idSet) TryAddBelow(id string, limit int) (added, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false, true
	}

	if len(s.ids) >= limit {
		return false, false
	}

	s.ids[id] = struct{}{}

	return true, false
}

func (s *idSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ids, id)
}

func (s *idSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ids[id]

	return ok
}

func (s *idSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ids)
}

func (s *idSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.ids)
}
