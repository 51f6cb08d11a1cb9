// Package keyring is an in-memory KeyResolver. It is the consumer
// side of the external key-distribution protocol: whatever party
// granted this instance a key registers it here under the origin
// context, optionally versioned by the rotation block it became valid
// at. Key generation and the distribution protocol itself live
// elsewhere.
package keyring

import (
	"context"
	"sort"
	"sync"

	"github.com/evannetwork/graphstore/pkg/envelope"
)

// epoch is one key version: valid from FromBlock onward, until a
// newer epoch supersedes it.
type epoch struct {
	fromBlock uint64
	key       []byte
}

// Ring holds symmetric keys by origin context. Safe for concurrent
// use.
type Ring struct {
	mu      sync.RWMutex
	origins map[string][]epoch // sorted ascending by fromBlock
}

func New() *Ring {
	return &Ring{origins: make(map[string][]epoch)}
}

// Grant registers a key for origin, valid from fromBlock onward.
// Granting the same block twice replaces the earlier key.
func (r *Ring) Grant(origin string, fromBlock uint64, key []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := make([]byte, len(key))
	copy(owned, key)

	epochs := r.origins[origin]
	for i, e := range epochs {
		if e.fromBlock == fromBlock {
			epochs[i].key = owned
			return
		}
	}

	epochs = append(epochs, epoch{fromBlock: fromBlock, key: owned})
	sort.Slice(epochs, func(i, j int) bool {
		return epochs[i].fromBlock < epochs[j].fromBlock
	})
	r.origins[origin] = epochs
}

// Revoke removes every key held for origin.
func (r *Ring) Revoke(origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.origins, origin)
}

// ResolveKey returns the newest key whose epoch begins at or before
// info.Block. A missing origin or an info.Block older than every held
// epoch resolves to not-found, never an error: lacking rights is an
// expected outcome.
func (r *Ring) ResolveKey(_ context.Context, info envelope.CryptoInfo) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	epochs, ok := r.origins[info.Origin]
	if !ok {
		return nil, false, nil
	}

	// Last epoch with fromBlock <= info.Block wins.
	idx := sort.Search(len(epochs), func(i int) bool {
		return epochs[i].fromBlock > info.Block
	}) - 1
	if idx < 0 {
		return nil, false, nil
	}
	return epochs[idx].key, true, nil
}

var _ envelope.KeyResolver = (*Ring)(nil)
