package chunkinfo

import "errors"

var (
	// ErrNotInfo indicates a blob without the chunk-info prologue.
	ErrNotInfo = errors.New("chunkinfo: not a chunk-info blob")

	// ErrMalformed indicates a blob with the prologue but an unreadable body.
	ErrMalformed = errors.New("chunkinfo: malformed blob")

	// ErrRootMismatch indicates the listed chunks do not hash to the recorded root.
	ErrRootMismatch = errors.New("chunkinfo: merkle root mismatch")

	// ErrSizeMismatch indicates reassembled data of the wrong length.
	ErrSizeMismatch = errors.New("chunkinfo: file size mismatch")

	// ErrInvalidName indicates a directory entry name that is empty or contains a separator.
	ErrInvalidName = errors.New("chunkinfo: invalid entry name")

	// ErrDuplicateName indicates two directory entries with the same name.
	ErrDuplicateName = errors.New("chunkinfo: duplicate entry name")
)
