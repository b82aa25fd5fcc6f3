package download

import "errors"

var (
	// ErrChunkNotFound indicates no source returned bytes matching the chunk id.
	ErrChunkNotFound = errors.New("download: chunk not found")

	// ErrInvalidID indicates a malformed content id.
	ErrInvalidID = errors.New("download: invalid content id")

	// ErrFileNotFound indicates no file map rows for a file id.
	ErrFileNotFound = errors.New("download: file not found")

	// ErrNotUTF8 indicates content requested as utf8 that is not valid UTF-8.
	ErrNotUTF8 = errors.New("download: content is not valid utf-8")

	// ErrUnknownEncoding indicates an unsupported output encoding.
	ErrUnknownEncoding = errors.New("download: unknown encoding")

	// ErrNotDir indicates a content id that is not a directory blob.
	ErrNotDir = errors.New("download: not a directory")
)
