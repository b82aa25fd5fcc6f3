// Package chunkcrypt encrypts chunks for a storage provider.
//
// The uploader generates an ephemeral secp256k1 key per chunk and derives
//
//	aes_key = HKDF-SHA256(ECDH(D_eph, P_provider).x, P_eph, "chunkd-chunk-encryption")
//
// The provider recomputes the same key from its own private key and the
// ephemeral public key sent alongside the chunk manifest. The plaintext
// digest is deliberately not part of the derivation: a provider must be
// able to decrypt before it can check the claimed plaintext digest.
package chunkcrypt

import (
	"crypto/sha256"
	"fmt"
	"io"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"golang.org/x/crypto/hkdf"
)

const (
	// HKDFInfo is the info string used in HKDF-SHA256 key derivation.
	HKDFInfo = "chunkd-chunk-encryption"

	// AESKeyLen is the length of the derived AES-256 key in bytes.
	AESKeyLen = 32
)

// ECDH returns the x-coordinate of privateKey.D * publicKey, zero-padded
// to 32 bytes.
func ECDH(privateKey *ec.PrivateKey, publicKey *ec.PublicKey) ([]byte, error) {
	if privateKey == nil {
		return nil, ErrNilPrivateKey
	}
	if publicKey == nil {
		return nil, ErrNilPublicKey
	}
	shared, err := privateKey.DeriveSharedSecret(publicKey)
	if err != nil {
		return nil, fmt.Errorf("chunkcrypt: ECDH failed: %w", err)
	}
	x := shared.X.Bytes()
	if len(x) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(x):], x)
		return padded, nil
	}
	return x[:32], nil
}

// DeriveKey derives the AES-256 key from a shared secret and the
// compressed ephemeral public key used as salt.
func DeriveKey(sharedX, ephemeralPub []byte) ([]byte, error) {
	if len(sharedX) == 0 {
		return nil, fmt.Errorf("%w: shared secret is empty", ErrHKDFFailure)
	}
	r := hkdf.New(sha256.New, sharedX, ephemeralPub, []byte(HKDFInfo))
	key := make([]byte, AESKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHKDFFailure, err)
	}
	return key, nil
}
