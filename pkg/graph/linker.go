package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/evannetwork/graphstore/pkg/envelope"
	"github.com/evannetwork/graphstore/pkg/fault"
	"github.com/evannetwork/graphstore/pkg/hash"
)

// ContentStore is the content-addressed backend the linker commits
// link boundaries to. Put derives the returned address from the bytes;
// Get is idempotent across callers.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (hash.Hash, error)
	Get(ctx context.Context, h hash.Hash) ([]byte, error)
}

// MutationOptions controls how Set attaches a subtree.
type MutationOptions struct {
	// InlineAsPlainObject inlines the subtree into the parent's own
	// node (same encryption scope, no new boundary) instead of
	// creating a link boundary.
	InlineAsPlainObject bool

	// CryptoInfo pins the new boundary to a specific encryption
	// context instead of the flush default. Only meaningful for link
	// boundaries, not for inlined subtrees.
	CryptoInfo *envelope.CryptoInfo
}

// FlushOptions carries the encryption contexts for one flush: RootInfo
// seals the remaining root-level structure, LinkDefault seals every
// dirty boundary that does not pin its own context.
type FlushOptions struct {
	RootInfo    envelope.CryptoInfo
	LinkDefault envelope.CryptoInfo
}

// Options configures a Linker.
type Options struct {
	Logger *logrus.Logger

	// FetchTimeout bounds every single content store call. Expiry
	// surfaces as a retryable transport error.
	FetchTimeout time.Duration

	// MaxConcurrentFetches bounds outstanding content store calls.
	MaxConcurrentFetches int64
}

const (
	DefaultFetchTimeout         = 120 * time.Second
	DefaultMaxConcurrentFetches = 8
)

// Linker navigates, mutates and flushes documents. It holds no
// per-document state: every operation takes an explicit tree value, so
// independent documents can be worked concurrently without locking.
// Racing mutations on overlapping paths of the same tree are a caller
// responsibility.
type Linker struct {
	store        ContentStore
	sealer       *envelope.Sealer
	log          *logrus.Logger
	fetchTimeout time.Duration
	sem          *semaphore.Weighted
}

func NewLinker(store ContentStore, sealer *envelope.Sealer, opts Options) *Linker {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.MaxConcurrentFetches <= 0 {
		opts.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}

	return &Linker{
		store:        store,
		sealer:       sealer,
		log:          opts.Logger,
		fetchTimeout: opts.FetchTimeout,
		sem:          semaphore.NewWeighted(opts.MaxConcurrentFetches),
	}
}

// DecodeEnvelope opens a sealed node fetched out of band (not through
// a link) and returns its value tree with unresolved link boundaries.
func (lk *Linker) DecodeEnvelope(ctx context.Context, data []byte) (any, error) {
	plain, _, err := lk.sealer.Open(ctx, data)
	if err != nil {
		return nil, err
	}
	return decodeNode(plain)
}

// Get walks path through root and returns the addressed node in
// linked view: the node itself is a real value, links below it stay
// unresolved. Boundaries crossed on the way (including the final
// target) are fetched and decrypted as needed; resolved content is
// cached on the crossed links. A denied boundary surfaces the branch
// as absent (nil, nil); a read lacking rights is not an error.
func (lk *Linker) Get(ctx context.Context, root any, path Path) (any, error) {
	cur, err := lk.resolveThrough(ctx, root)
	if err != nil {
		return lk.absentIfDenied(err)
	}

	for i, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fault.Pathf("%q does not descend into a map at %q",
				path, path[:i])
		}
		child, ok := m[key]
		if !ok {
			return nil, fault.Pathf("%q has no key %q", path, key)
		}
		cur, err = lk.resolveThrough(ctx, child)
		if err != nil {
			return lk.absentIfDenied(err)
		}
	}
	return cur, nil
}

// resolveThrough opens v if it is a link (and any link its content
// immediately turns out to be), returning the first plain value.
func (lk *Linker) resolveThrough(ctx context.Context, v any) (any, error) {
	for {
		l, ok := v.(*Link)
		if !ok {
			return v, nil
		}
		if err := lk.openLink(ctx, l); err != nil {
			return nil, err
		}
		v = l.Value
	}
}

func (lk *Linker) absentIfDenied(err error) (any, error) {
	if errors.Is(err, fault.ErrAccessDenied) {
		return nil, nil
	}
	return nil, err
}

// openLink fetches and decrypts an unresolved link in place, also
// remembering the encryption context the node was sealed under.
// Re-fetching is never needed afterwards: content addressing
// guarantees the cached value matches the hash.
func (lk *Linker) openLink(ctx context.Context, l *Link) error {
	if l.Resolved() {
		return nil
	}
	if l.Dirty() {
		return fmt.Errorf("open link: boundary has neither hash nor value")
	}

	data, err := lk.fetch(ctx, l.Hash)
	if err != nil {
		return err
	}

	plain, info, err := lk.sealer.Open(ctx, data)
	if err != nil {
		return err
	}

	value, err := decodeNode(plain)
	if err != nil {
		return err
	}

	l.Value = value
	if l.Crypto == nil {
		l.Crypto = &info
	}
	return nil
}

// Resolve returns node in resolved view: links replaced by their
// fetched and decrypted values, one level when deep is false,
// recursively until depth link boundaries are crossed when deep is
// true. The depth bound guarantees termination even when the same
// content hash recurs in one document; repeated fetches of one hash
// are memoized per call, and no state outlives the call.
//
// A failing branch (denied, unreachable, corrupt) resolves to absent
// without disturbing siblings; only failures of the node passed in
// itself propagate, and a denied top-level node reads as absent.
func (lk *Linker) Resolve(ctx context.Context, node any, depth int, deep bool) (any, error) {
	cache := newFetchCache()

	if l, ok := node.(*Link); ok {
		value, err := lk.loadLinkValue(ctx, l, cache)
		if err != nil {
			return lk.absentIfDenied(err)
		}
		node = value
		if deep {
			depth--
		} else {
			depth = 0
		}
	}

	return lk.resolveValue(ctx, node, depth, deep, cache)
}

func (lk *Linker) resolveValue(ctx context.Context, v any, depth int, deep bool, cache *fetchCache) (any, error) {
	switch node := v.(type) {
	case *Link:
		if depth <= 0 {
			return node, nil
		}
		value, err := lk.loadLinkValue(ctx, node, cache)
		if err != nil {
			lk.log.WithFields(logrus.Fields{
				"hash":  node.Hash.String(),
				"error": err.Error(),
			}).Warn("branch resolution failed, returning absent")
			return nil, nil
		}
		childDepth := 0
		if deep {
			childDepth = depth - 1
		}
		return lk.resolveValue(ctx, value, childDepth, deep, cache)

	case map[string]any:
		out := make(map[string]any, len(node))
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for k, child := range node {
			if l, ok := child.(*Link); ok && depth > 0 {
				k, l := k, l
				g.Go(func() error {
					rv, err := lk.resolveValue(gctx, l, depth, deep, cache)
					if err != nil {
						return err
					}
					mu.Lock()
					out[k] = rv
					mu.Unlock()
					return nil
				})
				continue
			}
			rv, err := lk.resolveValue(ctx, child, depth, deep, cache)
			if err != nil {
				return nil, err
			}
			mu.Lock()
			out[k] = rv
			mu.Unlock()
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil

	case []any:
		out := make([]any, len(node))
		g, gctx := errgroup.WithContext(ctx)
		for i, child := range node {
			if l, ok := child.(*Link); ok && depth > 0 {
				i, l := i, l
				g.Go(func() error {
					rv, err := lk.resolveValue(gctx, l, depth, deep, cache)
					if err != nil {
						return err
					}
					out[i] = rv
					return nil
				})
				continue
			}
			rv, err := lk.resolveValue(ctx, child, depth, deep, cache)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return v, nil
	}
}

// loadLinkValue returns the link's content without mutating the link:
// Resolve builds a fresh view and must not write into the caller's
// tree.
func (lk *Linker) loadLinkValue(ctx context.Context, l *Link, cache *fetchCache) (any, error) {
	if l.Resolved() {
		return l.Value, nil
	}
	if l.Dirty() {
		return nil, fmt.Errorf("resolve link: boundary has neither hash nor value")
	}

	data, ok := cache.get(l.Hash)
	if !ok {
		var err error
		data, err = lk.fetch(ctx, l.Hash)
		if err != nil {
			return nil, err
		}
		cache.put(l.Hash, data)
	}

	plain, _, err := lk.sealer.Open(ctx, data)
	if err != nil {
		return nil, err
	}
	return decodeNode(plain)
}

// Set inserts subtree at path, copy-on-write: the returned tree shares
// every untouched sibling with the input, and the input tree is never
// modified. By default the subtree becomes a new link boundary,
// independently stored and independently encrypted on the next flush.
// Boundaries crossed by the path are re-opened and marked dirty;
// writing across a denied boundary fails hard, since the mutation
// cannot merge into content it cannot see. Missing intermediate keys
// are created as maps. No store writes happen until flush.
func (lk *Linker) Set(ctx context.Context, root any, path Path, subtree any, opts MutationOptions) (any, error) {
	if path.IsRoot() {
		return nil, fault.Pathf("cannot set the document root")
	}
	if opts.InlineAsPlainObject && opts.CryptoInfo != nil {
		return nil, fmt.Errorf("set %q: crypto info requires a link boundary, not an inlined value", path)
	}
	return lk.setIn(ctx, root, path, subtree, opts)
}

func (lk *Linker) setIn(ctx context.Context, node any, path Path, subtree any, opts MutationOptions) (any, error) {
	if l, ok := node.(*Link); ok {
		if err := lk.openLink(ctx, l); err != nil {
			return nil, err
		}
		inner, err := lk.setIn(ctx, l.Value, path, subtree, opts)
		if err != nil {
			return nil, err
		}
		// Dirty copy: zero hash forces a re-flush of this boundary,
		// the kept crypto context keeps it under its original key.
		return &Link{Value: inner, Crypto: cloneInfo(l.Crypto)}, nil
	}

	m, ok := node.(map[string]any)
	if !ok {
		return nil, fault.Pathf("%q descends into a non-map value", path)
	}

	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	key := path[0]
	if len(path) == 1 {
		if opts.InlineAsPlainObject {
			out[key] = subtree
		} else {
			out[key] = NewLink(subtree, opts.CryptoInfo)
		}
		return out, nil
	}

	child, ok := m[key]
	if !ok {
		child = map[string]any{}
	}
	newChild, err := lk.setIn(ctx, child, path[1:], subtree, opts)
	if err != nil {
		return nil, err
	}
	out[key] = newChild
	return out, nil
}

// Remove deletes the node at path, copy-on-write like Set. Every
// boundary the path crosses becomes a dirty copy, so the next flush
// re-stores exactly the spine from the innermost affected boundary to
// the root while untouched siblings keep their hashes. Removing the
// last key inside a boundary leaves an empty but still-linked node;
// only removing the boundary's own key collapses it. The input tree is
// returned unmodified on any failure.
func (lk *Linker) Remove(ctx context.Context, root any, path Path) (any, error) {
	if path.IsRoot() {
		return nil, fault.Pathf("cannot remove the document root")
	}
	return lk.removeIn(ctx, root, path)
}

func (lk *Linker) removeIn(ctx context.Context, node any, path Path) (any, error) {
	if l, ok := node.(*Link); ok {
		if err := lk.openLink(ctx, l); err != nil {
			return nil, err
		}
		inner, err := lk.removeIn(ctx, l.Value, path)
		if err != nil {
			return nil, err
		}
		return &Link{Value: inner, Crypto: cloneInfo(l.Crypto)}, nil
	}

	m, ok := node.(map[string]any)
	if !ok {
		return nil, fault.Pathf("%q descends into a non-map value", path)
	}

	key := path[0]
	child, ok := m[key]
	if !ok {
		return nil, fault.Pathf("%q has no key %q", path, key)
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	if len(path) == 1 {
		delete(out, key)
		return out, nil
	}

	newChild, err := lk.removeIn(ctx, child, path[1:])
	if err != nil {
		return nil, err
	}
	out[key] = newChild
	return out, nil
}

// Flush commits the document: depth-first, every dirty link boundary
// is sealed under its own context (or the flush default) and stored,
// then replaced by its content address; clean boundaries keep their
// hashes untouched. Finally the root-level structure is sealed under
// RootInfo and stored, and its address returned together with the
// flushed tree and the log of every hash written. Any failure aborts
// the whole flush without producing a root hash; leaves already
// written stay unreachable orphans and the log is discarded.
func (lk *Linker) Flush(ctx context.Context, root any, opts FlushOptions) (hash.Hash, any, []hash.Hash, error) {
	wl := &writeLog{}

	flushed, err := lk.flushValue(ctx, root, opts.LinkDefault, wl)
	if err != nil {
		return hash.Hash{}, nil, nil, err
	}

	rootHash, err := lk.sealAndPut(ctx, flushed, opts.RootInfo, wl)
	if err != nil {
		return hash.Hash{}, nil, nil, err
	}

	return rootHash, flushed, wl.list(), nil
}

func (lk *Linker) flushValue(ctx context.Context, v any, def envelope.CryptoInfo, wl *writeLog) (any, error) {
	switch node := v.(type) {
	case *Link:
		if !node.Dirty() {
			return node, nil
		}
		if node.Value == nil {
			return nil, fmt.Errorf("flush: dirty link boundary carries no value")
		}

		// Children first: the subtree below this boundary must be
		// reduced to addresses before the boundary itself is sealed.
		childValue, err := lk.flushValue(ctx, node.Value, def, wl)
		if err != nil {
			return nil, err
		}

		info := def
		if node.Crypto != nil {
			info = *node.Crypto
		}

		h, err := lk.sealAndPut(ctx, childValue, info, wl)
		if err != nil {
			return nil, err
		}
		return &Link{Hash: h, Value: childValue, Crypto: &info}, nil

	case map[string]any:
		out := make(map[string]any, len(node))
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for k, child := range node {
			if l, ok := child.(*Link); ok && l.Dirty() {
				k, l := k, l
				g.Go(func() error {
					fv, err := lk.flushValue(gctx, l, def, wl)
					if err != nil {
						return err
					}
					mu.Lock()
					out[k] = fv
					mu.Unlock()
					return nil
				})
				continue
			}
			fv, err := lk.flushValue(ctx, child, def, wl)
			if err != nil {
				return nil, err
			}
			mu.Lock()
			out[k] = fv
			mu.Unlock()
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil

	case []any:
		out := make([]any, len(node))
		g, gctx := errgroup.WithContext(ctx)
		for i, child := range node {
			if l, ok := child.(*Link); ok && l.Dirty() {
				i, l := i, l
				g.Go(func() error {
					fv, err := lk.flushValue(gctx, l, def, wl)
					if err != nil {
						return err
					}
					out[i] = fv
					return nil
				})
				continue
			}
			fv, err := lk.flushValue(ctx, child, def, wl)
			if err != nil {
				return nil, err
			}
			out[i] = fv
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return v, nil
	}
}

func (lk *Linker) sealAndPut(ctx context.Context, value any, info envelope.CryptoInfo, wl *writeLog) (hash.Hash, error) {
	plain, err := encodeNode(value)
	if err != nil {
		return hash.Hash{}, err
	}

	data, err := lk.sealer.Seal(ctx, plain, info)
	if err != nil {
		return hash.Hash{}, err
	}

	h, err := lk.put(ctx, data)
	if err != nil {
		return hash.Hash{}, err
	}
	wl.add(h)
	return h, nil
}

// fetch and put are the only suspension points of the linker. Both
// wear the per-call timeout and the shared concurrency window, and
// both surface backend failures as retryable transport errors.
func (lk *Linker) fetch(ctx context.Context, h hash.Hash) ([]byte, error) {
	if err := lk.sem.Acquire(ctx, 1); err != nil {
		return nil, fault.Transport(err)
	}
	defer lk.sem.Release(1)

	fctx, cancel := context.WithTimeout(ctx, lk.fetchTimeout)
	defer cancel()

	data, err := lk.store.Get(fctx, h)
	if err != nil {
		if errors.Is(err, fault.ErrMalformedEnvelope) {
			return nil, err
		}
		return nil, fault.Transport(fmt.Errorf("get %s: %v", h, err))
	}
	return data, nil
}

func (lk *Linker) put(ctx context.Context, data []byte) (hash.Hash, error) {
	if err := lk.sem.Acquire(ctx, 1); err != nil {
		return hash.Hash{}, fault.Transport(err)
	}
	defer lk.sem.Release(1)

	pctx, cancel := context.WithTimeout(ctx, lk.fetchTimeout)
	defer cancel()

	h, err := lk.store.Put(pctx, data)
	if err != nil {
		return hash.Hash{}, fault.Transport(fmt.Errorf("put node: %v", err))
	}
	return h, nil
}

// fetchCache memoizes envelope bytes for one Resolve call, so a
// content hash recurring across the document is fetched once.
type fetchCache struct {
	mu      sync.Mutex
	entries map[hash.Hash][]byte
}

func newFetchCache() *fetchCache {
	return &fetchCache{entries: make(map[hash.Hash][]byte)}
}

func (c *fetchCache) get(h hash.Hash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[h]
	return data, ok
}

func (c *fetchCache) put(h hash.Hash, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[h] = data
}

// writeLog collects every hash one flush writes, so a caller can pin,
// unpin or roll back exactly the nodes one logical update produced.
type writeLog struct {
	mu     sync.Mutex
	hashes []hash.Hash
}

func (w *writeLog) add(h hash.Hash) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hashes = append(w.hashes, h)
}

func (w *writeLog) list() []hash.Hash {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]hash.Hash, len(w.hashes))
	copy(out, w.hashes)
	return out
}
