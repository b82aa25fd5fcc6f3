package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Signer signs pledge messages with the provider identity.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() *ec.PublicKey
}

// KeySigner signs with a secp256k1 private key: DER ECDSA over SHA-256.
type KeySigner struct {
	Key *ec.PrivateKey
}

var _ Signer = (*KeySigner)(nil)

// Sign implements Signer.
func (s *KeySigner) Sign(message []byte) ([]byte, error) {
	if s.Key == nil {
		return nil, fmt.Errorf("provider: signer has no key")
	}
	hash := sha256.Sum256(message)
	sig, err := s.Key.Sign(hash[:])
	if err != nil {
		return nil, fmt.Errorf("provider: sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey implements Signer.
func (s *KeySigner) PublicKey() *ec.PublicKey { return s.Key.PubKey() }

// PledgeMessage is the byte string a provider signs to pledge it holds
// chunkID: the JSON array ["STORAGE","PLEDGE",chunkID,pledgedAt].
func PledgeMessage(chunkID string, pledgedAt int64) []byte {
	b, _ := json.Marshal([]any{"STORAGE", "PLEDGE", chunkID, pledgedAt})
	return b
}

// VerifyPledge checks a hex DER signature returned by
// STORE_CHUNK_SIGNATURE_REQUEST against the provider's public key.
func VerifyPledge(pub *ec.PublicKey, chunkID string, pledgedAt int64, sigHex string) bool {
	if pub == nil {
		return false
	}
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := ec.ParseDERSignature(raw)
	if err != nil {
		return false
	}
	hash := sha256.Sum256(PledgeMessage(chunkID, pledgedAt))
	return sig.Verify(hash[:], pub)
}
