package envelope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evannetwork/graphstore/pkg/codec"
	"github.com/evannetwork/graphstore/pkg/fault"
)

// mapResolver is a minimal resolver for tests: origin -> key.
type mapResolver map[string][]byte

func (m mapResolver) ResolveKey(_ context.Context, info CryptoInfo) ([]byte, bool, error) {
	key, ok := m[info.Origin]
	return key, ok, nil
}

func testKey(b byte) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(mapResolver{"ctx-a": testKey(0x11)})
	plaintext := []byte("the quick brown fox")

	for _, algo := range []string{AlgoUnencrypted, AlgoAESGCM, AlgoXChaCha} {
		t.Run(algo, func(t *testing.T) {
			info := CryptoInfo{Algorithm: algo, Origin: "ctx-a", Block: 7}

			data, err := sealer.Seal(ctx, plaintext, info)
			require.NoError(t, err)

			opened, gotInfo, err := sealer.Open(ctx, data)
			require.NoError(t, err)
			assert.Equal(t, plaintext, opened)
			assert.Equal(t, info, gotInfo)
		})
	}
}

func TestUnencryptedNeedsNoKey(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(mapResolver{})

	data, err := sealer.Seal(ctx, []byte("public"), CryptoInfo{Algorithm: AlgoUnencrypted})
	require.NoError(t, err)

	opened, _, err := sealer.Open(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, []byte("public"), opened)
}

func TestOpenWithoutKeyIsAccessDenied(t *testing.T) {
	ctx := context.Background()
	writer := NewSealer(mapResolver{"ctx-a": testKey(0x11)})
	reader := NewSealer(mapResolver{})

	data, err := writer.Seal(ctx, []byte("secret"),
		CryptoInfo{Algorithm: AlgoAESGCM, Origin: "ctx-a"})
	require.NoError(t, err)

	_, _, err = reader.Open(ctx, data)
	require.ErrorIs(t, err, fault.ErrAccessDenied)
	assert.NotErrorIs(t, err, fault.ErrMalformedEnvelope)
}

func TestOpenWithWrongKeyIsMalformed(t *testing.T) {
	ctx := context.Background()
	writer := NewSealer(mapResolver{"ctx-a": testKey(0x11)})
	reader := NewSealer(mapResolver{"ctx-a": testKey(0x22)})

	data, err := writer.Seal(ctx, []byte("secret"),
		CryptoInfo{Algorithm: AlgoXChaCha, Origin: "ctx-a"})
	require.NoError(t, err)

	_, _, err = reader.Open(ctx, data)
	require.ErrorIs(t, err, fault.ErrMalformedEnvelope)
	assert.NotErrorIs(t, err, fault.ErrAccessDenied)
}

func TestSealWithoutKeyFails(t *testing.T) {
	sealer := NewSealer(mapResolver{})

	_, err := sealer.Seal(context.Background(), []byte("secret"),
		CryptoInfo{Algorithm: AlgoAESGCM, Origin: "nobody"})
	require.ErrorIs(t, err, fault.ErrAccessDenied)
}

func TestTamperedMetadataFailsToOpen(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(mapResolver{"ctx-a": testKey(0x11), "ctx-b": testKey(0x11)})

	data, err := sealer.Seal(ctx, []byte("secret"),
		CryptoInfo{Algorithm: AlgoAESGCM, Origin: "ctx-a"})
	require.NoError(t, err)

	// Rewrite the envelope claiming a different origin for the same
	// ciphertext. The AAD binding must reject it even though the same
	// key resolves for both origins.
	env, err := Decode(data)
	require.NoError(t, err)
	env.Info.Origin = "ctx-b"
	reEncoded, err := codec.Marshal(env)
	require.NoError(t, err)

	_, _, err = sealer.Open(ctx, reEncoded)
	require.ErrorIs(t, err, fault.ErrMalformedEnvelope)
}

func TestGarbageIsMalformed(t *testing.T) {
	sealer := NewSealer(mapResolver{})

	_, _, err := sealer.Open(context.Background(), []byte("not an envelope"))
	require.ErrorIs(t, err, fault.ErrMalformedEnvelope)
}

func TestUnknownAlgorithmIsMalformed(t *testing.T) {
	sealer := NewSealer(mapResolver{})

	data, err := codec.Marshal(Envelope{
		CipherText: []byte{1, 2, 3},
		Info:       CryptoInfo{Algorithm: "rot13"},
	})
	require.NoError(t, err)

	_, _, err = sealer.Open(context.Background(), data)
	require.ErrorIs(t, err, fault.ErrMalformedEnvelope)
}
