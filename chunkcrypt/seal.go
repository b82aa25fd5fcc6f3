package chunkcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

const (
	// NonceLen is the length of the AES-GCM nonce in bytes.
	NonceLen = 12

	// GCMTagLen is the length of the GCM authentication tag in bytes.
	GCMTagLen = 16

	// MinCiphertextLen is the minimum valid ciphertext length (nonce + tag).
	MinCiphertextLen = NonceLen + GCMTagLen
)

// Sealed is a chunk encrypted for one provider.
type Sealed struct {
	// Ciphertext is nonce(12B) || AES-256-GCM(plaintext) || tag(16B).
	Ciphertext []byte

	// EphemeralPub is the compressed uploader key the provider needs to
	// rederive the AES key.
	EphemeralPub *ec.PublicKey
}

// PubKeyHex returns the compressed ephemeral public key in hex.
func (s *Sealed) PubKeyHex() string {
	return hex.EncodeToString(s.EphemeralPub.Compressed())
}

// Seal encrypts plaintext to recipient under a fresh ephemeral key.
func Seal(plaintext []byte, recipient *ec.PublicKey) (*Sealed, error) {
	if recipient == nil {
		return nil, ErrNilPublicKey
	}
	eph, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("chunkcrypt: ephemeral key: %w", err)
	}
	key, err := sessionKey(eph, recipient, eph.PubKey())
	if err != nil {
		return nil, err
	}
	ct, err := aesGCMEncrypt(plaintext, key)
	if err != nil {
		return nil, err
	}
	return &Sealed{Ciphertext: ct, EphemeralPub: eph.PubKey()}, nil
}

// Open decrypts a chunk sealed to priv under ephemeralPub.
func Open(ciphertext []byte, priv *ec.PrivateKey, ephemeralPub *ec.PublicKey) ([]byte, error) {
	if ephemeralPub == nil {
		return nil, ErrNilPublicKey
	}
	key, err := sessionKey(priv, ephemeralPub, ephemeralPub)
	if err != nil {
		return nil, err
	}
	return aesGCMDecrypt(ciphertext, key)
}

// ParsePubKey parses a hex compressed secp256k1 public key.
func ParsePubKey(s string) (*ec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	pub, err := ec.PublicKeyFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

func sessionKey(priv *ec.PrivateKey, pub, ephemeral *ec.PublicKey) ([]byte, error) {
	shared, err := ECDH(priv, pub)
	if err != nil {
		return nil, err
	}
	return DeriveKey(shared, ephemeral.Compressed())
}

func aesGCMEncrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("chunkcrypt: random nonce generation failed: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func aesGCMDecrypt(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) < MinCiphertextLen {
		return nil, ErrInvalidCiphertext
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, body := ciphertext[:NonceLen], ciphertext[NonceLen:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: AES cipher creation failed: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: GCM creation failed: %v", ErrDecryptionFailed, err)
	}
	return gcm, nil
}
