package digest

import "errors"

var (
	// ErrNilLeaves indicates the leaf list passed to MerkleTree is nil.
	ErrNilLeaves = errors.New("digest: leaves must be a list")

	// ErrNoLeaves indicates MerkleTree was called with an empty leaf list.
	ErrNoLeaves = errors.New("digest: no leaves")

	// ErrNilHashFunc indicates no hash function was supplied.
	ErrNilHashFunc = errors.New("digest: hash function is nil")

	// ErrInvalidID indicates a string is not a 64-char lowercase hex digest.
	ErrInvalidID = errors.New("digest: invalid id")
)
