// Package tx builds, signs and parses the ledger transactions that carry
// chunks. A chunk transaction has an OP_FALSE OP_RETURN output holding
// three pushes: the protocol flag, the 32-byte chunk id and the chunk
// bytes.
package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"

	"github.com/bitfsorg/chunkd/digest"
)

// ProtocolFlag marks chunk outputs.
var ProtocolFlag = []byte("chunkd")

const (
	// DustLimit is the minimum P2PKH output value in satoshis.
	DustLimit = uint64(546)

	// DefaultFeeRate is the default fee rate in sat/KB.
	DefaultFeeRate = uint64(1)

	// MaxDataSize bounds the chunk bytes carried by one transaction.
	MaxDataSize = 64 << 20
)

// BuildChunkPushes returns the OP_RETURN data pushes for a chunk.
func BuildChunkPushes(chunkID string, data []byte) ([][]byte, error) {
	id, err := hex.DecodeString(chunkID)
	if err != nil || !digest.Valid(chunkID) {
		return nil, fmt.Errorf("%w: chunk id %q", ErrInvalidPayload, chunkID)
	}
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(data))
	}
	return [][]byte{ProtocolFlag, id, data}, nil
}

// ParseChunkPushes extracts the chunk id and bytes from OP_RETURN pushes.
func ParseChunkPushes(pushes [][]byte) (string, []byte, error) {
	if len(pushes) != 3 {
		return "", nil, fmt.Errorf("%w: expected 3 data pushes, got %d", ErrInvalidOPReturn, len(pushes))
	}
	if !bytes.Equal(pushes[0], ProtocolFlag) {
		return "", nil, fmt.Errorf("%w: missing protocol flag", ErrNotChunkTx)
	}
	if len(pushes[1]) != digest.Size {
		return "", nil, fmt.Errorf("%w: chunk id must be %d bytes, got %d", ErrInvalidOPReturn, digest.Size, len(pushes[1]))
	}
	return hex.EncodeToString(pushes[1]), pushes[2], nil
}

// buildOPReturnScript creates an OP_FALSE OP_RETURN script from data pushes.
func buildOPReturnScript(pushes [][]byte) (*script.Script, error) {
	s := &script.Script{}
	*s = append(*s, script.Op0, script.OpRETURN)
	for _, push := range pushes {
		if err := s.AppendPushData(push); err != nil {
			return nil, fmt.Errorf("%w: OP_RETURN push data: %w", ErrScriptBuild, err)
		}
	}
	return s, nil
}

// opReturnPushes returns the data pushes of an OP_FALSE OP_RETURN script,
// or false if s is not one.
func opReturnPushes(s *script.Script) ([][]byte, bool) {
	b := []byte(*s)
	if len(b) < 2 || b[0] != script.Op0 || b[1] != script.OpRETURN {
		return nil, false
	}
	chunks, err := script.NewFromBytes(b[2:]).Chunks()
	if err != nil {
		return nil, false
	}
	pushes := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		if c.Op > script.OpPUSHDATA4 {
			return nil, false
		}
		pushes = append(pushes, c.Data)
	}
	return pushes, true
}

// EstimateFee returns ceil(txSizeBytes * feeRate / 1000).
func EstimateFee(txSizeBytes int, feeRate uint64) uint64 {
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	return (uint64(txSizeBytes)*feeRate + 999) / 1000
}

// EstimateTxSize estimates the size of a chunk transaction.
func EstimateTxSize(numInputs int, dataSize int) int {
	// version + locktime + counts, 148 per P2PKH input, one change output,
	// and the OP_RETURN output with its push headers.
	const base, perInput, change = 10, 148, 34
	opReturn := 8 + 5 + 2 + (1 + len(ProtocolFlag)) + (1 + digest.Size) + (5 + dataSize)
	return base + numInputs*perInput + change + opReturn
}

// ChunkTxParams holds the inputs of BuildChunkTx.
type ChunkTxParams struct {
	ChunkID   string
	Data      []byte
	FeeInputs []*UTXO
	// ChangeAddr is the 20-byte P2PKH hash for change.
	ChangeAddr []byte
	FeeRate    uint64
}

// BuildChunkTx builds an unsigned chunk transaction.
//
// Outputs:
//
//	0: OP_FALSE OP_RETURN "chunkd" <chunk id> <data>
//	1: P2PKH -> change (omitted if dust)
func BuildChunkTx(p *ChunkTxParams) (*ChunkTx, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: params", ErrNilParam)
	}
	if len(p.FeeInputs) == 0 {
		return nil, fmt.Errorf("%w: no fee inputs", ErrNilParam)
	}
	pushes, err := BuildChunkPushes(p.ChunkID, p.Data)
	if err != nil {
		return nil, err
	}

	var available uint64
	for i, in := range p.FeeInputs {
		if in == nil {
			return nil, fmt.Errorf("%w: feeInput[%d]", ErrNilParam, i)
		}
		available += in.Amount
	}
	fee := EstimateFee(EstimateTxSize(len(p.FeeInputs), len(p.Data)), p.FeeRate)
	if available < fee {
		return nil, fmt.Errorf("%w: need %d sat, have %d sat", ErrInsufficientFunds, fee, available)
	}

	sdkTx := transaction.NewTransaction()
	for _, in := range p.FeeInputs {
		hash, err := chainhash.NewHashFromHex(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid UTXO TxID: %w", ErrScriptBuild, err)
		}
		sdkTx.AddInput(&transaction.TransactionInput{
			SourceTXID:       hash,
			SourceTxOutIndex: in.Vout,
			SequenceNumber:   transaction.DefaultSequenceNumber,
		})
	}

	opReturn, err := buildOPReturnScript(pushes)
	if err != nil {
		return nil, err
	}
	sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{Satoshis: 0, LockingScript: opReturn})

	result := &ChunkTx{}
	if change := available - fee; change > DustLimit {
		if len(p.ChangeAddr) != 20 {
			return nil, fmt.Errorf("%w: change address must be 20 bytes", ErrScriptBuild)
		}
		out, err := BuildP2PKHOutput(p.ChangeAddr, change)
		if err != nil {
			return nil, err
		}
		sdkTx.Outputs = append(sdkTx.Outputs, out)
		result.ChangeUTXO = &UTXO{Vout: 1, Amount: change, ScriptPubKey: []byte(*out.LockingScript)}
	}

	result.RawTx = sdkTx.Bytes()
	return result, nil
}

// ParseChunkTx finds the chunk output of a serialized transaction.
func ParseChunkTx(raw []byte) (string, []byte, error) {
	sdkTx, err := transaction.NewTransactionFromBytes(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrNotChunkTx, err)
	}
	for _, out := range sdkTx.Outputs {
		if out.LockingScript == nil {
			continue
		}
		pushes, ok := opReturnPushes(out.LockingScript)
		if !ok {
			continue
		}
		id, data, err := ParseChunkPushes(pushes)
		if err == nil {
			return id, data, nil
		}
	}
	return "", nil, ErrNotChunkTx
}

// BuildP2PKHOutput creates a P2PKH output paying satoshis to a 20-byte
// public key hash.
func BuildP2PKHOutput(pubKeyHash []byte, satoshis uint64) (*transaction.TransactionOutput, error) {
	addr, err := script.NewAddressFromPublicKeyHash(pubKeyHash, true)
	if err != nil {
		return nil, fmt.Errorf("%w: address from hash: %w", ErrScriptBuild, err)
	}
	lockScript, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: P2PKH lock: %w", ErrScriptBuild, err)
	}
	return &transaction.TransactionOutput{Satoshis: satoshis, LockingScript: lockScript}, nil
}
