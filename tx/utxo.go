package tx

import (
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// UTXO is an unspent output used to fund a chunk transaction.
type UTXO struct {
	TxID         string         `json:"txid"` // display-order hex
	Vout         uint32         `json:"vout"`
	Amount       uint64         `json:"amount"`        // satoshis
	ScriptPubKey []byte         `json:"script_pubkey"` // locking script bytes
	PrivateKey   *ec.PrivateKey `json:"-"`             // signing key (not serialized)
}

// ChunkTx is a built chunk transaction.
type ChunkTx struct {
	RawTx      []byte
	TxID       string
	ChangeUTXO *UTXO // nil if change was dust
}
