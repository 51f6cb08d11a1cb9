package graph

import (
	"fmt"

	"github.com/evannetwork/graphstore/pkg/codec"
	"github.com/evannetwork/graphstore/pkg/fault"
	"github.com/evannetwork/graphstore/pkg/hash"
)

// linkTagNumber is the CBOR tag wrapping a link's content address in
// stored node plaintext. Tag 42 is the IPLD content-identifier tag, so
// stored nodes stay readable by generic CBOR tooling.
const linkTagNumber = 42

// encodeNode serializes a node value to its deterministic wire form,
// with every link reduced to its tagged content address. Encoding a
// dirty link is a programming error: flush must store children before
// encoding the parent.
func encodeNode(v any) ([]byte, error) {
	wire, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(wire)
}

// decodeNode parses node plaintext back into a value tree with
// unresolved *Link boundaries.
func decodeNode(data []byte) (any, error) {
	var raw any
	if err := codec.Unmarshal(data, &raw); err != nil {
		return nil, fault.Malformed(fmt.Errorf("decode node: %v", err))
	}
	return fromWire(raw)
}

func toWire(v any) (any, error) {
	switch node := v.(type) {
	case *Link:
		if node.Dirty() {
			return nil, fmt.Errorf("encode node: unflushed link boundary")
		}
		return codec.Tag{Number: linkTagNumber, Content: node.Hash.Bytes()}, nil
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			w, err := toWire(child)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			w, err := toWire(child)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	default:
		return v, nil
	}
}

func fromWire(v any) (any, error) {
	switch node := v.(type) {
	case codec.Tag:
		if node.Number != linkTagNumber {
			return nil, fault.Malformed(
				fmt.Errorf("unexpected CBOR tag %d in stored node", node.Number))
		}
		raw, ok := node.Content.([]byte)
		if !ok || len(raw) != hash.Size {
			return nil, fault.Malformed(
				fmt.Errorf("link tag does not carry a %d-byte address", hash.Size))
		}
		var h hash.Hash
		copy(h[:], raw)
		return &Link{Hash: h}, nil
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			w, err := fromWire(child)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			w, err := fromWire(child)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	default:
		return v, nil
	}
}
