package keystore

import (
	"bytes"
	"path/filepath"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestEncryptDecryptSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	enc, err := EncryptSeed(seed, "pw")
	require.NoError(t, err)

	got, err := DecryptSeed(enc, "pw")
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	_, err = DecryptSeed(enc, "wrong")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = DecryptSeed(enc[:10], "pw")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = EncryptSeed(nil, "pw")
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	require.NoError(t, err)
	_, err = SeedFromMnemonic(m, "")
	assert.NoError(t, err)

	_, err = SeedFromMnemonic("not a mnemonic", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestImportOpen_DeterministicKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ks, err := Import(path, testMnemonic, "pw", "regtest")
	require.NoError(t, err)

	provider, err := ks.ProviderKey()
	require.NoError(t, err)
	fee, err := ks.FeeKey()
	require.NoError(t, err)
	assert.NotEqual(t, provider.PubKey().Compressed(), fee.PubKey().Compressed())

	reopened, err := Open(path, "pw", "regtest")
	require.NoError(t, err)
	provider2, err := reopened.ProviderKey()
	require.NoError(t, err)
	assert.Equal(t, provider.Serialize(), provider2.Serialize())

	_, err = Open(path, "nope", "regtest")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	_, err = Open(filepath.Join(t.TempDir(), "missing"), "pw", "regtest")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	mnemonic, _, err := Create(path, "pw", "mainnet")
	require.NoError(t, err)
	assert.NotEmpty(t, mnemonic)

	_, _, err = Create(path, "pw", "mainnet")
	assert.ErrorIs(t, err, ErrExists)
}

func TestAddress(t *testing.T) {
	seed, err := SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	main, err := FromSeed(seed, "mainnet")
	require.NoError(t, err)
	test, err := FromSeed(seed, "testnet")
	require.NoError(t, err)

	key, err := main.ProviderKey()
	require.NoError(t, err)

	a1, err := main.Address(key.PubKey())
	require.NoError(t, err)
	a2, err := test.Address(key.PubKey())
	require.NoError(t, err)
	assert.True(t, main.Mainnet())
	assert.Equal(t, byte('1'), a1[0])
	assert.NotEqual(t, a1, a2)
}

func TestKeyFile(t *testing.T) {
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "provider.key")

	require.NoError(t, WriteKeyFile(path, priv))
	got, err := ReadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, priv.Serialize(), got.Serialize())

	assert.ErrorIs(t, WriteKeyFile(path, nil), ErrInvalidKey)
	_, err = ParsePrivateKeyHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
