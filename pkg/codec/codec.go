// Package codec is the deterministic serializer for stored nodes. It
// wraps fxamacker/cbor configured for Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same logical value always produces
// identical bytes, which is what makes content addressing and
// structural sharing possible: a re-encoded but unchanged node keeps
// its hash.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Node values decode into any-typed trees. Graph keys are
		// always strings, so force map[string]any instead of the CBOR
		// default map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Decode integers to int64 regardless of sign, so a value
		// survives a store/load cycle with its Go type intact.
		IntDec: cbor.IntDecConvertSignedOrFail,
		// Link boundaries are carried as tagged data items. Surface
		// unregistered tags as cbor.Tag so the graph layer can map
		// them back to typed links.
		UnrecognizedTagToAny: cbor.UnrecognizedTagNumAndContentToAny,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Tag is a raw CBOR tag value (number plus content).
type Tag = cbor.Tag

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
