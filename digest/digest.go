// Package digest implements content addressing for chunks and files.
//
// A chunk id is the lowercase hex SHA-256 of the bytes it names. Every
// byte payload that crosses a trust boundary is checked against its id
// with Verify before it is cached or returned.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length in bytes of a raw digest.
const Size = sha256.Size

// HexSize is the length of a digest in its hex (id) form.
const HexSize = Size * 2

// Digest returns the content address of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Bytes returns the raw SHA-256 of data.
func Bytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Verify reports whether data hashes to id.
func Verify(id string, data []byte) bool {
	return Valid(id) && Digest(data) == id
}

// Valid reports whether id looks like a content address: 64 lowercase hex chars.
func Valid(id string) bool {
	if len(id) != HexSize {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Decode converts a hex id to raw digest bytes.
func Decode(id string) ([]byte, error) {
	if !Valid(id) {
		return nil, ErrInvalidID
	}
	return hex.DecodeString(id)
}
