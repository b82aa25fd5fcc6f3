package tx

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("tx: required parameter is nil")

	// ErrInsufficientFunds indicates the fee inputs cannot cover the fee.
	ErrInsufficientFunds = errors.New("tx: insufficient funds")

	// ErrInvalidPayload indicates a chunk id that is not a digest or data over the size limit.
	ErrInvalidPayload = errors.New("tx: invalid payload")

	// ErrSigningFailed indicates transaction signing failed.
	ErrSigningFailed = errors.New("tx: signing failed")

	// ErrScriptBuild indicates script construction failed.
	ErrScriptBuild = errors.New("tx: script build failed")

	// ErrInvalidOPReturn indicates the OP_RETURN script is malformed.
	ErrInvalidOPReturn = errors.New("tx: invalid OP_RETURN format")

	// ErrNotChunkTx indicates a transaction without a chunk output.
	ErrNotChunkTx = errors.New("tx: not a chunk transaction")
)
