package contentstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/evannetwork/graphstore/pkg/hash"
)

// MemoryStore is a map-backed content-addressed store. Safe for
// concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[hash.Hash][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[hash.Hash][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte) (hash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return hash.Hash{}, err
	}

	h := hash.Bytes(data)
	owned := make([]byte, len(data))
	copy(owned, data)

	s.mu.Lock()
	s.entries[h] = owned
	s.mu.Unlock()
	return h, nil
}

func (s *MemoryStore) Get(ctx context.Context, h hash.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.entries[h]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no content for %s", h)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len returns the number of stored nodes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
