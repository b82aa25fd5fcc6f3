package storage

import "errors"

var (
	// ErrNotFound indicates no content exists for the given id.
	ErrNotFound = errors.New("storage: content not found")

	// ErrInvalidID indicates the id is not a 64-char hex digest.
	ErrInvalidID = errors.New("storage: invalid content id")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrInvalidChunkSize indicates the chunk size is not a positive integer.
	ErrInvalidChunkSize = errors.New("storage: chunk size must be positive")
)
