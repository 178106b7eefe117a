package markers

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps markers in memory. It is used by tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	markers map[string]Marker
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{markers: make(map[string]Marker)}
}

// Has implements Store.
func (s *MemoryStore) Has(id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.markers[id]
	return ok, nil
}

// Get implements Store.
func (s *MemoryStore) Get(id string) (Marker, error) {
	if err := ValidateID(id); err != nil {
		return Marker{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markers[id]
	if !ok {
		return Marker{}, ErrNotFound
	}
	return m.clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(m Marker) error {
	if err := ValidateID(m.StepID); err != nil {
		return err
	}
	if m.CompletedAt.IsZero() {
		m.CompletedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[m.StepID] = m.clone()
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, id)
	return nil
}

// List implements Store.
func (s *MemoryStore) List() ([]Marker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Marker, 0, len(s.markers))
	for _, m := range s.markers {
		out = append(out, m.clone())
	}
	slices.SortFunc(out, func(a, b Marker) int { return strings.Compare(a.StepID, b.StepID) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
