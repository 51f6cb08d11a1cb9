package graphstore

import (
	"context"
	"fmt"

	"github.com/evannetwork/graphstore/pkg/fault"
	"github.com/evannetwork/graphstore/pkg/graph"
	"github.com/evannetwork/graphstore/pkg/hash"
)

// normalizeRef turns the caller's document reference into a tree the
// linker can walk. Accepted forms:
//
//   - hash.Hash: a stored root address
//   - string: the same address in hex, with or without a 0x prefix
//   - []byte: a raw sealed node fetched out of band
//   - *graph.Link, map[string]any, []any or a scalar: an in-memory
//     tree, passed through unchanged
func (s *Store) normalizeRef(ctx context.Context, ref any) (any, error) {
	switch r := ref.(type) {
	case hash.Hash:
		return &graph.Link{Hash: r}, nil

	case string:
		h, err := hash.FromHex(r)
		if err != nil {
			return nil, fault.Pathf("reference %q is not a content address: %v", r, err)
		}
		return &graph.Link{Hash: h}, nil

	case []byte:
		node, err := s.linker.DecodeEnvelope(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("decode referenced envelope: %w", err)
		}
		return node, nil

	default:
		return ref, nil
	}
}
