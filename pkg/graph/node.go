// Package graph implements the linker/builder at the heart of the
// store: an in-memory document made of plain values and link
// boundaries, path navigation across those boundaries, in-memory
// insert and delete with copy-on-write structural sharing, and the
// leaf-first flush that commits every boundary to the content store
// under its own encryption context.
//
// A document is an any-typed tree of map[string]any, []any and
// scalars. Link boundaries are represented by the explicit *Link type,
// never by a reserved map key, so user data can contain any key names
// without being mistaken for a link.
package graph

import (
	"github.com/evannetwork/graphstore/pkg/envelope"
	"github.com/evannetwork/graphstore/pkg/hash"
)

// Link is a sub-tree stored (or about to be stored) as its own
// independently addressed and independently encrypted node.
//
// A Link moves through three states:
//
//   - unresolved: Hash set, Value nil. Loaded from a stored parent,
//     content not fetched yet.
//   - resolved: Hash set, Value set. Fetched and decrypted; still
//     clean, so a flush reuses Hash without re-storing.
//   - dirty: Hash zero, Value set. Created by Set or invalidated by a
//     mutation underneath; the next flush stores it under a new hash.
type Link struct {
	// Hash is the content address of the stored node. The zero hash
	// marks a dirty boundary awaiting flush.
	Hash hash.Hash

	// Value is the resolved in-memory content, nil while unresolved.
	Value any

	// Crypto is the encryption context this boundary is sealed under.
	// Populated from the envelope on resolution so a re-flushed
	// boundary keeps its key context; nil means the flush default.
	Crypto *envelope.CryptoInfo
}

// NewLink returns a dirty link wrapping value, to be stored as an
// independent node on the next flush. A non-nil info pins the boundary
// to a specific encryption context.
func NewLink(value any, info *envelope.CryptoInfo) *Link {
	return &Link{Value: value, Crypto: cloneInfo(info)}
}

// Resolved reports whether the link's content is present in memory.
func (l *Link) Resolved() bool {
	return l.Value != nil
}

// Dirty reports whether the link must be re-stored on the next flush.
func (l *Link) Dirty() bool {
	return l.Hash.IsZero()
}

func cloneInfo(info *envelope.CryptoInfo) *envelope.CryptoInfo {
	if info == nil {
		return nil
	}
	c := *info
	return &c
}
