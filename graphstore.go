// Package graphstore stores documents as graphs of encrypted,
// content-addressed nodes. A document is a tree of plain values; any
// subtree can be split off behind a link boundary, stored as its own
// node, and encrypted under its own key, so one document can span
// different access scopes while unchanged parts keep their addresses
// across edits.
package graphstore

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/evannetwork/graphstore/pkg/envelope"
	"github.com/evannetwork/graphstore/pkg/graph"
)

// Store is the main handle. It combines a content-addressed backend, a
// key resolver deciding what the caller may decrypt, and the linker
// that navigates and commits document graphs. A Store holds no
// per-document state; one instance serves any number of documents
// concurrently.
type Store struct {
	log    *logrus.Logger
	config Config
	linker *graph.Linker
}

// New constructs a Store. content is the node backend (see
// pkg/contentstore for local implementations), resolver supplies
// decryption keys per encryption context (see pkg/keyring).
func New(content graph.ContentStore, resolver envelope.KeyResolver, conf Config) (*Store, error) {
	if content == nil {
		return nil, errors.New("graphstore: content store must be provided")
	}
	if resolver == nil {
		return nil, errors.New("graphstore: key resolver must be provided")
	}
	conf.applyDefaults()

	linker := graph.NewLinker(content, envelope.NewSealer(resolver), graph.Options{
		Logger:               conf.Logger,
		FetchTimeout:         conf.FetchTimeout,
		MaxConcurrentFetches: conf.MaxConcurrentFetches,
	})

	return &Store{
		log:    conf.Logger,
		config: conf,
		linker: linker,
	}, nil
}

// Store commits a document graph and returns its root address together
// with the log of every node written. Dirty link boundaries are sealed
// under their own encryption context or the configured default; the
// root-level structure itself is stored unencrypted, since a root that
// needs protection belongs behind a link boundary. A failed commit
// returns no receipt and leaves the input tree dirty for a retry.
func (s *Store) Store(ctx context.Context, value any) (Receipt, error) {
	// A mutation applied to a stored reference hands back the document
	// wrapped in its root link; committing stores the document itself,
	// not an indirection to it.
	if l, ok := value.(*graph.Link); ok && l.Resolved() {
		value = l.Value
	}

	root, _, written, err := s.linker.Flush(ctx, value, graph.FlushOptions{
		RootInfo:    envelope.CryptoInfo{Algorithm: envelope.AlgoUnencrypted},
		LinkDefault: s.config.DefaultCryptoInfo,
	})
	if err != nil {
		return Receipt{}, err
	}

	s.log.WithFields(logrus.Fields{
		"root":    root.String(),
		"written": len(written),
	}).Debug("document committed")

	return Receipt{Root: root, Written: written}, nil
}

// GetLinkedGraph returns the node addressed by path in linked view:
// the node itself is a plain value, link boundaries below it stay
// unresolved. ref names the document root (see normalizeRef). A denied
// boundary on the path makes the result absent (nil, nil).
func (s *Store) GetLinkedGraph(ctx context.Context, ref any, path string) (any, error) {
	root, err := s.normalizeRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.linker.Get(ctx, root, graph.ParsePath(path))
}

// GetResolvedGraph returns the node addressed by path with link
// boundaries recursively replaced by their content, until depth
// boundaries have been crossed. A non-positive depth uses the
// configured default. Branches that cannot be resolved (denied,
// unreachable, corrupt) read as absent without disturbing siblings.
func (s *Store) GetResolvedGraph(ctx context.Context, ref any, path string, depth int) (any, error) {
	if depth <= 0 {
		depth = s.config.ResolveDepth
	}

	node, err := s.GetLinkedGraph(ctx, ref, path)
	if err != nil {
		return nil, err
	}
	return s.linker.Resolve(ctx, node, depth, true)
}

// Set returns a new tree with value attached at path, sharing all
// untouched structure with the input. By default the value becomes a
// new link boundary; see graph.MutationOptions for inlining and for
// pinning an encryption context. Nothing is written until Store
// commits the returned tree.
func (s *Store) Set(ctx context.Context, ref any, path string, value any, opts graph.MutationOptions) (any, error) {
	root, err := s.normalizeRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.linker.Set(ctx, root, graph.ParsePath(path), value, opts)
}

// Remove returns a new tree without the node at path, sharing all
// untouched structure with the input. Nothing is written until Store
// commits the returned tree.
func (s *Store) Remove(ctx context.Context, ref any, path string) (any, error) {
	root, err := s.normalizeRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.linker.Remove(ctx, root, graph.ParsePath(path))
}
