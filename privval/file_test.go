package privval

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"

	"hotbft/crypto/bls"
)

func tempKeyFile(t *testing.T) string {
	dir, err := ioutil.TempDir("", "privval")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "priv_validator_key.json")
}

func TestFilePVSaveAndLoad(t *testing.T) {
	testCases := []struct {
		keyType string
		pubType string
	}{
		{KeyTypeEd25519, ed25519.KeyType},
		{KeyTypeBLS, bls.KeyType},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.keyType, func(t *testing.T) {
			keyFile := tempKeyFile(t)
			pv, err := GenFilePV(keyFile, tc.keyType)
			require.NoError(t, err)
			require.NoError(t, pv.Save())

			loaded, err := LoadFilePV(keyFile)
			require.NoError(t, err)
			assert.Equal(t, pv.GetAddress(), loaded.GetAddress())
			assert.Equal(t, tc.pubType, loaded.Key.PubKey.Type())

			digest := []byte("digest")
			sig, err := loaded.Sign(digest)
			require.NoError(t, err)
			pubKey, err := pv.GetPubKey()
			require.NoError(t, err)
			assert.True(t, pubKey.VerifySignature(digest, sig))
		})
	}
}

func TestLoadOrGenFilePV(t *testing.T) {
	keyFile := tempKeyFile(t)
	first, err := LoadOrGenFilePV(keyFile, KeyTypeEd25519)
	require.NoError(t, err)
	second, err := LoadOrGenFilePV(keyFile, KeyTypeBLS)
	require.NoError(t, err)
	assert.Equal(t, first.GetAddress(), second.GetAddress())
}

func TestGenFilePVWithSeedIsDeterministic(t *testing.T) {
	a, err := GenFilePVWithSeed("", KeyTypeBLS, 7, 1)
	require.NoError(t, err)
	b, err := GenFilePVWithSeed("", KeyTypeBLS, 7, 1)
	require.NoError(t, err)
	c, err := GenFilePVWithSeed("", KeyTypeBLS, 7, 2)
	require.NoError(t, err)

	assert.Equal(t, a.GetAddress(), b.GetAddress())
	assert.NotEqual(t, a.GetAddress(), c.GetAddress())
}

func TestLoadFilePVErrors(t *testing.T) {
	keyFile := tempKeyFile(t)
	_, err := LoadFilePV(keyFile)
	assert.Error(t, err)

	require.NoError(t, ioutil.WriteFile(keyFile, []byte("not json"), 0600))
	_, err = LoadFilePV(keyFile)
	assert.Error(t, err)

	_, err = GenFilePV(keyFile, "rsa")
	assert.Error(t, err)
}

func TestFilePVSaveWithoutPath(t *testing.T) {
	pv, err := GenFilePV("", KeyTypeEd25519)
	require.NoError(t, err)
	assert.Error(t, pv.Save())
}
