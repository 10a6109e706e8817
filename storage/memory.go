package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Address]Record
}

// NewMemoryStore creates an empty in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Address]Record)}
}

func (s *MemoryStore) Load(ctx context.Context, addr Address) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[addr]
	if !ok {
		return nil, ErrNotFound
	}
	cpy := rec
	cpy.Data = append([]byte(nil), rec.Data...)
	return &cpy, nil
}

func (s *MemoryStore) CommitAll(ctx context.Context, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every guard before touching anything.
	for _, w := range writes {
		current, ok := s.records[w.Address]
		if !ok {
			if w.Version != 0 {
				return ErrVersionConflict
			}
			continue
		}
		if current.Version != w.Version {
			return ErrVersionConflict
		}
	}

	for _, w := range writes {
		s.records[w.Address] = Record{
			Address: w.Address,
			Data:    append([]byte(nil), w.Data...),
			Version: w.Version + 1,
		}
	}
	return nil
}
