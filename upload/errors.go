package upload

import "errors"

var (
	// ErrUploadFailed indicates the send retry budget for a chunk is exhausted.
	ErrUploadFailed = errors.New("upload: failed to upload chunk")

	// ErrValidateFailed indicates the validation retry budget for a chunk is exhausted.
	ErrValidateFailed = errors.New("upload: failed to validate chunk")

	// ErrNotValidated is returned by a Sender when the backend accepted the
	// data but could not confirm it. It is charged to the validation budget.
	ErrNotValidated = errors.New("upload: chunk not validated")

	// ErrClosed indicates the Uploader has been closed.
	ErrClosed = errors.New("upload: uploader closed")

	// ErrNotRegular indicates a path that is neither a regular file nor a directory.
	ErrNotRegular = errors.New("upload: not a regular file or directory")
)
