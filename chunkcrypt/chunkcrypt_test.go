package chunkcrypt

import (
	"bytes"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/chunkd/digest"
)

func newKey(t *testing.T) *ec.PrivateKey {
	t.Helper()
	k, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return k
}

func TestSealOpen_RoundTrip(t *testing.T) {
	provider := newKey(t)
	plaintext := []byte("hello provider")

	sealed, err := Seal(plaintext, provider.PubKey())
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed.Ciphertext)
	assert.Len(t, sealed.Ciphertext, len(plaintext)+MinCiphertextLen)

	got, err := Open(sealed.Ciphertext, provider, sealed.EphemeralPub)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSealOpen_EmptyPlaintext(t *testing.T) {
	provider := newKey(t)
	sealed, err := Seal(nil, provider.PubKey())
	require.NoError(t, err)

	got, err := Open(sealed.Ciphertext, provider, sealed.EphemeralPub)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_WrongKey(t *testing.T) {
	provider := newKey(t)
	other := newKey(t)
	sealed, err := Seal([]byte("secret"), provider.PubKey())
	require.NoError(t, err)

	_, err = Open(sealed.Ciphertext, other, sealed.EphemeralPub)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpen_Tampered(t *testing.T) {
	provider := newKey(t)
	sealed, err := Seal([]byte("secret"), provider.PubKey())
	require.NoError(t, err)
	sealed.Ciphertext[len(sealed.Ciphertext)-1] ^= 0xff

	_, err = Open(sealed.Ciphertext, provider, sealed.EphemeralPub)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpen_Short(t *testing.T) {
	provider := newKey(t)
	_, err := Open(make([]byte, MinCiphertextLen-1), provider, provider.PubKey())
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNilKeys(t *testing.T) {
	_, err := Seal([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)

	k := newKey(t)
	_, err = Open(make([]byte, 40), nil, k.PubKey())
	assert.ErrorIs(t, err, ErrNilPrivateKey)
	_, err = Open(make([]byte, 40), k, nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)
}

func TestECDH_Symmetric(t *testing.T) {
	a, b := newKey(t), newKey(t)
	ab, err := ECDH(a, b.PubKey())
	require.NoError(t, err)
	ba, err := ECDH(b, a.PubKey())
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Len(t, ab, 32)
}

func TestParsePubKey(t *testing.T) {
	k := newKey(t)
	sealed, err := Seal([]byte("x"), k.PubKey())
	require.NoError(t, err)

	pub, err := ParsePubKey(sealed.PubKeyHex())
	require.NoError(t, err)
	assert.Equal(t, sealed.EphemeralPub.Compressed(), pub.Compressed())

	_, err = ParsePubKey("zz")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
	_, err = ParsePubKey("0011")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestSegments(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 25)
	segs, hashes, err := Segments(data, 100)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	require.Len(t, hashes, 3)
	assert.Len(t, segs[2], 50)
	for i := range segs {
		assert.Equal(t, digest.Digest(segs[i]), hashes[i])
	}
	assert.Equal(t, data, bytes.Join(segs, nil))

	_, _, err = Segments(data, 0)
	assert.ErrorIs(t, err, ErrInvalidSegmentSize)
}
