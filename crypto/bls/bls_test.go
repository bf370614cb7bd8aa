package bls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

func TestSignAndValidate(t *testing.T) {
	privKey := GenPrivKey()
	pubKey := privKey.PubKey()

	msg := []byte("vote data digest")
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)
	assert.Len(t, sig, SignatureSize)

	assert.True(t, pubKey.VerifySignature(msg, sig))
	assert.False(t, pubKey.VerifySignature([]byte("other digest"), sig))

	// 篡改签名
	sig[7] ^= byte(0x01)
	assert.False(t, pubKey.VerifySignature(msg, sig))
}

func TestGenPrivKeyWithSeedIsDeterministic(t *testing.T) {
	a := GenPrivKeyWithSeed([]byte("seed-1"))
	b := GenPrivKeyWithSeed([]byte("seed-1"))
	c := GenPrivKeyWithSeed([]byte("seed-2"))

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.True(t, a.PubKey().Equals(b.PubKey()))
	assert.Len(t, a.PubKey().Address(), crypto.AddressSize)
}

func TestKeyTypesDoNotMix(t *testing.T) {
	privKey := GenPrivKey()
	edKey := ed25519.GenPrivKey()
	assert.False(t, privKey.Equals(edKey))
	assert.False(t, privKey.PubKey().Equals(edKey.PubKey()))
}

func TestJSONRoundTrip(t *testing.T) {
	var pubKey crypto.PubKey = GenPrivKey().PubKey()
	bz, err := tmjson.Marshal(pubKey)
	require.NoError(t, err)
	assert.Contains(t, string(bz), PubKeyName)

	var decoded crypto.PubKey
	require.NoError(t, tmjson.Unmarshal(bz, &decoded))
	assert.True(t, pubKey.Equals(decoded))
}
