// Package envelope implements the per-node encryption envelope. Every
// stored graph node is wrapped in an Envelope: ciphertext plus the
// metadata needed to locate the decryption key again, and nothing
// else. Different sub-trees of one document can therefore be disclosed
// to different parties under different keys.
//
// Node plaintext is zstd-compressed before encryption; the envelope
// metadata is bound into the AEAD as additional authenticated data, so
// an envelope whose CryptoInfo was tampered with fails to open.
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/evannetwork/graphstore/pkg/codec"
	"github.com/evannetwork/graphstore/pkg/fault"
)

// Supported algorithm identifiers. AlgoUnencrypted is a pass-through,
// so public and protected nodes compose under one envelope model.
const (
	AlgoUnencrypted = "unencrypted"
	AlgoAESGCM      = "aes-256-gcm"
	AlgoXChaCha     = "xchacha20-poly1305"
)

// KeySize is the symmetric key length for all encrypting algorithms.
const KeySize = 32

// CryptoInfo identifies which key protects a node. It carries enough
// to locate the key again later, never the key itself.
type CryptoInfo struct {
	// Algorithm names the cipher the node is sealed under.
	Algorithm string `cbor:"algorithm"`
	// Origin is the key-lookup context hash, assigned by the sharing
	// protocol that distributes keys.
	Origin string `cbor:"origin,omitempty"`
	// Block is the key-rotation epoch active when the node was
	// written, so historical data keeps opening under the key version
	// it was sealed with.
	Block uint64 `cbor:"block,omitempty"`
}

// Envelope is the wire structure of one stored node.
type Envelope struct {
	CipherText []byte     `cbor:"cipherText"`
	Info       CryptoInfo `cbor:"cryptoInfo"`
}

// KeyResolver maps envelope metadata to a symmetric key. The second
// return is false when the caller has no key for this context; that is
// an expected outcome, not an error.
type KeyResolver interface {
	ResolveKey(ctx context.Context, info CryptoInfo) ([]byte, bool, error)
}

// Sealer seals and opens node envelopes using a KeyResolver to locate
// keys. It holds no per-call state and is safe for concurrent use.
type Sealer struct {
	resolver KeyResolver
}

func NewSealer(resolver KeyResolver) *Sealer {
	return &Sealer{resolver: resolver}
}

// zstd EncodeAll/DecodeAll on shared instances is concurrency-safe.
var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

// Seal compresses and encrypts plaintext under the key resolved from
// info and returns the encoded envelope bytes. Sealing under a context
// the resolver has no key for fails with fault.ErrAccessDenied: a
// writer cannot produce content it could never read back.
func (s *Sealer) Seal(ctx context.Context, plaintext []byte, info CryptoInfo) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(plaintext, nil)

	var cipherText []byte
	switch info.Algorithm {
	case AlgoUnencrypted:
		cipherText = compressed
	case AlgoAESGCM, AlgoXChaCha:
		key, err := s.lookupKey(ctx, info)
		if err != nil {
			return nil, err
		}
		cipherText, err = encrypt(info, key, compressed)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", info.Algorithm)
	}

	return codec.Marshal(Envelope{CipherText: cipherText, Info: info})
}

// Open decodes envelope bytes, resolves the key named by the embedded
// CryptoInfo and returns the decrypted, decompressed plaintext along
// with that CryptoInfo, so callers can remember the context a node was
// sealed under. A missing key surfaces as fault.ErrAccessDenied;
// undecodable or undecryptable bytes as fault.ErrMalformedEnvelope.
func (s *Sealer) Open(ctx context.Context, data []byte) ([]byte, CryptoInfo, error) {
	env, err := Decode(data)
	if err != nil {
		return nil, CryptoInfo{}, err
	}

	var compressed []byte
	switch env.Info.Algorithm {
	case AlgoUnencrypted:
		compressed = env.CipherText
	case AlgoAESGCM, AlgoXChaCha:
		key, err := s.lookupKey(ctx, env.Info)
		if err != nil {
			return nil, CryptoInfo{}, err
		}
		compressed, err = decrypt(env.Info, key, env.CipherText)
		if err != nil {
			return nil, CryptoInfo{}, err
		}
	default:
		return nil, CryptoInfo{}, fault.Malformed(
			fmt.Errorf("unsupported algorithm %q", env.Info.Algorithm))
	}

	plaintext, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, CryptoInfo{}, fault.Malformed(fmt.Errorf("decompress node: %v", err))
	}
	return plaintext, env.Info, nil
}

// Decode parses raw bytes into an Envelope without opening it.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Envelope{}, fault.Malformed(fmt.Errorf("decode envelope: %v", err))
	}
	if env.Info.Algorithm == "" {
		return Envelope{}, fault.Malformed(fmt.Errorf("envelope carries no algorithm"))
	}
	return env, nil
}

func (s *Sealer) lookupKey(ctx context.Context, info CryptoInfo) ([]byte, error) {
	key, ok, err := s.resolver.ResolveKey(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("resolve key for origin %s: %w", info.Origin, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no key for origin %s (block %d)",
			fault.ErrAccessDenied, info.Origin, info.Block)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("resolved key for origin %s has %d bytes, want %d",
			info.Origin, len(key), KeySize)
	}
	return key, nil
}

// aad is the additional authenticated data binding ciphertext to its
// own metadata: the deterministic encoding of CryptoInfo.
func aad(info CryptoInfo) ([]byte, error) {
	return codec.Marshal(info)
}

func newAEAD(info CryptoInfo, key []byte) (cipher.AEAD, error) {
	switch info.Algorithm {
	case AlgoAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgoXChaCha:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", info.Algorithm)
	}
}

// encrypt seals plaintext and returns nonce-prefixed ciphertext.
func encrypt(info CryptoInfo, key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(info, key)
	if err != nil {
		return nil, err
	}

	additional, err := aad(info)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, additional), nil
}

func decrypt(info CryptoInfo, key, data []byte) ([]byte, error) {
	aead, err := newAEAD(info, key)
	if err != nil {
		return nil, fault.Malformed(err)
	}

	if len(data) < aead.NonceSize() {
		return nil, fault.Malformed(fmt.Errorf("ciphertext shorter than nonce"))
	}

	additional, err := aad(info)
	if err != nil {
		return nil, err
	}

	nonce, cipherText := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, cipherText, additional)
	if err != nil {
		return nil, fault.Malformed(fmt.Errorf("open ciphertext: %v", err))
	}
	return plaintext, nil
}
