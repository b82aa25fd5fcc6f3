package chunkcrypt

import "errors"

var (
	// ErrNilPrivateKey indicates a nil private key was provided.
	ErrNilPrivateKey = errors.New("chunkcrypt: private key is nil")

	// ErrNilPublicKey indicates a nil public key was provided.
	ErrNilPublicKey = errors.New("chunkcrypt: public key is nil")

	// ErrInvalidPublicKey indicates a public key failed to parse.
	ErrInvalidPublicKey = errors.New("chunkcrypt: invalid public key")

	// ErrInvalidCiphertext indicates the ciphertext is too short.
	// Minimum length: 12 (nonce) + 16 (GCM tag) = 28 bytes.
	ErrInvalidCiphertext = errors.New("chunkcrypt: invalid ciphertext")

	// ErrDecryptionFailed indicates AES-GCM authentication failed.
	ErrDecryptionFailed = errors.New("chunkcrypt: decryption failed")

	// ErrHKDFFailure indicates HKDF key derivation failed.
	ErrHKDFFailure = errors.New("chunkcrypt: HKDF key derivation failed")

	// ErrInvalidSegmentSize indicates a non-positive segment size.
	ErrInvalidSegmentSize = errors.New("chunkcrypt: segment size must be positive")
)
