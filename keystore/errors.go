package keystore

import "errors"

var (
	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("keystore: invalid BIP39 mnemonic")

	// ErrDecryptionFailed indicates wrong password or corrupted keystore data.
	ErrDecryptionFailed = errors.New("keystore: seed decryption failed (wrong password or corrupted data)")

	// ErrChecksumMismatch indicates seed checksum verification failed after decryption.
	ErrChecksumMismatch = errors.New("keystore: seed checksum mismatch")

	// ErrInvalidSeed indicates the seed is empty or invalid.
	ErrInvalidSeed = errors.New("keystore: invalid seed")

	// ErrDerivationFailed indicates BIP32 key derivation failed.
	ErrDerivationFailed = errors.New("keystore: key derivation failed")

	// ErrInvalidKey indicates a private key file or string is malformed.
	ErrInvalidKey = errors.New("keystore: invalid private key")

	// ErrExists indicates a keystore file is already present.
	ErrExists = errors.New("keystore: keystore already exists")

	// ErrNotFound indicates the keystore file does not exist.
	ErrNotFound = errors.New("keystore: keystore not found")
)
