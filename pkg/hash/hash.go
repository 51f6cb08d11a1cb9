// Package hash provides the content address type used throughout the
// graph store. A content address is a 32-byte keyed BLAKE3 digest of a
// stored node's bytes; identical bytes always produce the identical
// address.
package hash

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Size is the length of a content address in bytes.
const Size = 32

// nodeDomainKey is the BLAKE3 key used for node addressing. Domain
// separation keeps node addresses from colliding with hashes computed
// over the same bytes in other contexts. The value is the ASCII domain
// name zero-padded to 32 bytes and must never change: changing it
// invalidates every stored address.
var nodeDomainKey = [32]byte{
	'g', 'r', 'a', 'p', 'h', 's', 't', 'o', 'r', 'e', '.',
	'n', 'o', 'd', 'e', '.', 'v', '1',
}

// Hash is a fixed-size content address.
type Hash [Size]byte

// Bytes computes the content address of the given data.
func Bytes(data []byte) Hash {
	hasher, err := blake3.NewKeyed(nodeDomainKey[:])
	if err != nil {
		// NewKeyed only fails on a wrong key length, which the
		// fixed-size array rules out.
		panic("hash: BLAKE3 keyed hasher init failed: " + err.Error())
	}
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// FromHex parses a hex string into a Hash. A leading "0x" is accepted
// since ledger-side callers conventionally carry the root address in
// that form.
func FromHex(s string) (Hash, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != Size*2 {
		return Hash{}, fmt.Errorf(
			"invalid hex length: expected %d, got %d", Size*2, len(s),
		)
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("decode hex: %w", err)
	}

	var h Hash
	copy(h[:], decoded)
	return h, nil
}

// IsZero returns true if the hash is the zero value. The graph layer
// uses the zero hash to mark link boundaries that have not been
// flushed yet.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a byte slice copy of the hash.
func (h Hash) Bytes() []byte {
	b := make([]byte, len(h))
	copy(b, h[:])
	return b
}

// String returns the hexadecimal representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}
