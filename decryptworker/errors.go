package decryptworker

import "errors"

var (
	// ErrWorkerFailed indicates the worker ran and reported a decryption failure.
	ErrWorkerFailed = errors.New("decryptworker: decryption failed")

	// ErrWorkerCrashed indicates the worker exited or panicked without a valid reply.
	ErrWorkerCrashed = errors.New("decryptworker: worker crashed")

	// ErrWorkerTimeout indicates the worker did not finish within the job timeout.
	ErrWorkerTimeout = errors.New("decryptworker: worker timed out")

	// ErrInvalidJob indicates a job with missing fields.
	ErrInvalidJob = errors.New("decryptworker: invalid job")

	// ErrUnknownCommand indicates a request command the worker does not support.
	ErrUnknownCommand = errors.New("decryptworker: unknown command")
)
