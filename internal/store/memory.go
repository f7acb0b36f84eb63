package store

import (
	"fmt"
	"sync"

	"github.com/banshee-data/arthylene/internal/anchor"
)

// MemoryStore is an in-process AnchorStore for tests and simulation.
type MemoryStore struct {
	mu    sync.Mutex
	lists   map[string][]anchor.Record
	saveErr error
	saves   int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[string][]anchor.Record)}
}

// LoadAnchors returns a copy of the list saved under key.
func (s *MemoryStore) LoadAnchors(key string) ([]anchor.Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]anchor.Record{}, l...), nil
}

// SaveAnchors stores a copy of records under key.
func (s *MemoryStore) SaveAnchors(key string, records []anchor.Record) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.lists[key] = append([]anchor.Record{}, records...)
	s.saves++
	return nil
}

// DeleteAnchors removes the list saved under key.
func (s *MemoryStore) DeleteAnchors(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(s.lists, key)
	return nil
}

// Saves returns how many lists have been saved successfully.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// SetSaveErr makes subsequent saves fail with err. nil restores them.
func (s *MemoryStore) SetSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}
