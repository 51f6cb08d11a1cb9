package graphstore

import "github.com/evannetwork/graphstore/pkg/hash"

// Receipt reports a committed document: the root content address and
// every hash the commit wrote, in no particular order. The write log
// is what a caller needs to pin the document's nodes in a remote store
// or to unpin them again when rolling the commit back.
type Receipt struct {
	Root    hash.Hash
	Written []hash.Hash
}
