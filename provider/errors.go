package provider

import "github.com/bitfsorg/chunkd/protocol"

// Stable error codes returned to peers.
const (
	CodeChunkNotFound      = "ECHUNKNOTFOUND"
	CodeChunkAlreadyStored = "ECHUNKALREADYSTORED"
	CodeInvalidHash        = "EINVALIDHASH"
	CodeInvalidChunkRealID = "EINVALIDCHUNKREALID"
	CodeChunkLost          = "ECHUNKLOST"
	CodeChunkIncomplete    = "ECHUNKINCOMPLETE"
	CodeInvalidSegment     = "EINVALIDSEGMENT"
	CodeRejected           = "ECHUNKREJECTED"
)

var (
	// ErrChunkNotFound indicates an unknown chunk, or one not yet servable.
	ErrChunkNotFound = protocol.NewError(CodeChunkNotFound, "chunk not found")

	// ErrChunkAlreadyStored indicates segments were already declared for the chunk.
	ErrChunkAlreadyStored = protocol.NewError(CodeChunkAlreadyStored, "chunk already stored")

	// ErrInvalidHash indicates received bytes do not match their declared digest.
	ErrInvalidHash = protocol.NewError(CodeInvalidHash, "invalid hash")

	// ErrInvalidChunkRealID indicates the decrypted chunk does not match the claimed real id.
	ErrInvalidChunkRealID = protocol.NewError(CodeInvalidChunkRealID, "decrypted chunk does not match real id")

	// ErrChunkLost indicates stored bytes no longer match their digest.
	ErrChunkLost = protocol.NewError(CodeChunkLost, "chunk lost")

	// ErrChunkIncomplete indicates a pledge was requested before all segments arrived.
	ErrChunkIncomplete = protocol.NewError(CodeChunkIncomplete, "chunk data incomplete")

	// ErrInvalidSegment indicates a segment index outside the declared manifest.
	ErrInvalidSegment = protocol.NewError(CodeInvalidSegment, "invalid segment index")

	// ErrInvalidParams indicates malformed message parameters.
	ErrInvalidParams = protocol.NewError(protocol.CodeInvalidParams, "invalid parameters")

	// ErrRejected indicates the admission policy declined a store request.
	ErrRejected = protocol.NewError(CodeRejected, "store request rejected")

	// ErrInternal indicates a local failure unrelated to the peer's input.
	ErrInternal = protocol.NewError(protocol.CodeInternal, "internal error")
)
