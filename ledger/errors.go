package ledger

import "errors"

var (
	// ErrNotIndexed indicates the index holds no transaction for a chunk.
	ErrNotIndexed = errors.New("ledger: chunk not indexed")

	// ErrUnavailable indicates no indexed transaction yielded the chunk.
	ErrUnavailable = errors.New("ledger: chunk unavailable")

	// ErrNoFunds indicates the funding address cannot pay for a chunk transaction.
	ErrNoFunds = errors.New("ledger: insufficient funds")

	// ErrInvalidTxID indicates a malformed transaction id.
	ErrInvalidTxID = errors.New("ledger: invalid txid")
)
