package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/evannetwork/graphstore/pkg/contentstore"
	"github.com/evannetwork/graphstore/pkg/envelope"
)

// genScalar draws a leaf value that survives a store round trip
// unchanged.
func genScalar(rt *rapid.T) any {
	switch rapid.IntRange(0, 2).Draw(rt, "kind") {
	case 0:
		return rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "str")
	case 1:
		return rapid.Int64().Draw(rt, "num")
	default:
		return rapid.Bool().Draw(rt, "bool")
	}
}

// genNode draws a document subtree together with its plain-map model:
// the document may wrap any sub-map in a link boundary, the model never
// does, so path operations on the two compare one to one.
func genNode(rt *rapid.T, depth int) (any, any) {
	if depth <= 0 || rapid.Bool().Draw(rt, "leaf") {
		s := genScalar(rt)
		return s, s
	}
	doc, model := genMap(rt, depth)
	if rapid.Bool().Draw(rt, "linked") {
		return NewLink(doc, nil), model
	}
	return doc, model
}

func genMap(rt *rapid.T, depth int) (map[string]any, map[string]any) {
	keys := rapid.SliceOfNDistinct(
		rapid.StringMatching(`[a-z]{1,5}`), 1, 3, rapid.ID[string],
	).Draw(rt, "keys")

	doc := make(map[string]any, len(keys))
	model := make(map[string]any, len(keys))
	for _, k := range keys {
		dv, mv := genNode(rt, depth-1)
		doc[k] = dv
		model[k] = mv
	}
	return doc, model
}

// keyPaths lists the path of every key in the model, at every depth.
func keyPaths(model map[string]any, prefix Path) []Path {
	var out []Path
	for k, v := range model {
		p := append(append(Path{}, prefix...), k)
		out = append(out, p)
		if m, ok := v.(map[string]any); ok {
			out = append(out, keyPaths(m, p)...)
		}
	}
	return out
}

func deleteAt(model map[string]any, path Path) {
	if len(path) == 1 {
		delete(model, path[0])
		return
	}
	deleteAt(model[path[0]].(map[string]any), path[1:])
}

func lookupAt(model map[string]any, path Path) any {
	cur := any(model)
	for _, key := range path {
		cur = cur.(map[string]any)[key]
	}
	return cur
}

// TestRemoveMatchesModel drives random documents with link boundaries
// at arbitrary depths through a store round trip, checks every path
// against a plain-map model, removes a random key and checks the whole
// document again. Boundary placement must never be observable in
// resolved views.
func TestRemoveMatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := contentstore.NewMemoryStore()
		lk := NewLinker(store, envelope.NewSealer(testRing()), Options{Logger: quietLogger()})

		doc, model := genMap(rt, 4)
		h, _, _, err := lk.Flush(ctx, doc, testFlushOptions())
		require.NoError(rt, err)

		paths := keyPaths(model, nil)
		for _, p := range paths {
			got, err := lk.Get(ctx, loadRoot(h), p)
			require.NoError(rt, err)
			resolved, err := lk.Resolve(ctx, got, 64, true)
			require.NoError(rt, err)
			require.Equal(rt, lookupAt(model, p), resolved, "path %q", p)
		}

		target := rapid.SampledFrom(paths).Draw(rt, "target")
		root, err := lk.Get(ctx, loadRoot(h), nil)
		require.NoError(rt, err)
		mutated, err := lk.Remove(ctx, root, target)
		require.NoError(rt, err)
		deleteAt(model, target)

		h2, _, _, err := lk.Flush(ctx, mutated, testFlushOptions())
		require.NoError(rt, err)

		root2, err := lk.Get(ctx, loadRoot(h2), nil)
		require.NoError(rt, err)
		resolved, err := lk.Resolve(ctx, root2, 64, true)
		require.NoError(rt, err)
		require.Equal(rt, any(model), resolved)
	})
}
