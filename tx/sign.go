package tx

import (
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
)

// SignChunkTx signs every input of ctx with the matching UTXO's key,
// updates ctx in place and returns the signed transaction hex.
//
// utxos[i] signs input i; each must carry a PrivateKey and ScriptPubKey.
func SignChunkTx(ctx *ChunkTx, utxos []*UTXO) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("%w: ChunkTx", ErrNilParam)
	}
	if len(ctx.RawTx) == 0 {
		return "", fmt.Errorf("%w: RawTx is empty", ErrSigningFailed)
	}
	if len(utxos) == 0 {
		return "", fmt.Errorf("%w: utxos", ErrNilParam)
	}

	sdkTx, err := transaction.NewTransactionFromBytes(ctx.RawTx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse raw tx: %w", ErrSigningFailed, err)
	}
	if len(utxos) != len(sdkTx.Inputs) {
		return "", fmt.Errorf("%w: have %d UTXOs but tx has %d inputs",
			ErrSigningFailed, len(utxos), len(sdkTx.Inputs))
	}

	for i, utxo := range utxos {
		if utxo == nil {
			return "", fmt.Errorf("%w: utxo[%d] is nil", ErrNilParam, i)
		}
		if utxo.PrivateKey == nil {
			return "", fmt.Errorf("%w: utxo[%d] has nil PrivateKey", ErrSigningFailed, i)
		}
		if len(utxo.ScriptPubKey) == 0 {
			return "", fmt.Errorf("%w: utxo[%d] has empty ScriptPubKey", ErrSigningFailed, i)
		}
		unlocker, err := p2pkh.Unlock(utxo.PrivateKey, nil)
		if err != nil {
			return "", fmt.Errorf("%w: unlocker for input %d: %w", ErrSigningFailed, i, err)
		}
		sdkTx.Inputs[i].SetSourceTxOutput(&transaction.TransactionOutput{
			Satoshis:      utxo.Amount,
			LockingScript: script.NewFromBytes(utxo.ScriptPubKey),
		})
		sdkTx.Inputs[i].UnlockingScriptTemplate = unlocker
	}

	if err := sdkTx.Sign(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	ctx.RawTx = sdkTx.Bytes()
	ctx.TxID = sdkTx.TxID().String()
	if ctx.ChangeUTXO != nil {
		ctx.ChangeUTXO.TxID = ctx.TxID
	}
	return sdkTx.Hex(), nil
}

// BuildP2PKHScript creates a P2PKH locking script for pubKey.
func BuildP2PKHScript(pubKey *ec.PublicKey) ([]byte, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("%w: public key", ErrNilParam)
	}
	addr, err := script.NewAddressFromPublicKey(pubKey, true)
	if err != nil {
		return nil, fmt.Errorf("%w: address from pubkey: %w", ErrScriptBuild, err)
	}
	lockScript, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: P2PKH lock script: %w", ErrScriptBuild, err)
	}
	return []byte(*lockScript), nil
}

// PubKeyHash returns the 20-byte hash160 of pubKey's compressed form.
func PubKeyHash(pubKey *ec.PublicKey) ([]byte, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("%w: public key", ErrNilParam)
	}
	addr, err := script.NewAddressFromPublicKey(pubKey, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}
	return addr.PublicKeyHash, nil
}
