package repository

import "errors"

var (
	// ErrNotFound indicates no chunk row exists for the given id.
	ErrNotFound = errors.New("repository: chunk not found")

	// ErrInvalidID indicates an empty or malformed chunk id.
	ErrInvalidID = errors.New("repository: invalid chunk id")

	// ErrDatabase wraps failures from the underlying database.
	ErrDatabase = errors.New("repository: database error")
)
