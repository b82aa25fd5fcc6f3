// Package keystore holds the node's keys: a password-encrypted BIP39
// seed from which the provider identity key and the ledger fee key are
// derived.
package keystore

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"

	"github.com/bitfsorg/chunkd/storage"
)

const (
	PurposeBIP44 = 44
	CoinTypeBSV  = 236

	FeeAccount      = 0
	ProviderAccount = 1

	Hardened = 0x80000000

	// FileName is the keystore file inside the data directory.
	FileName = "keystore.enc"
)

// Keystore is an unlocked key hierarchy.
type Keystore struct {
	master  *bip32.ExtendedKey
	mainnet bool
}

// FromSeed builds a Keystore from a BIP39 seed. network selects address
// encoding: "mainnet" or anything else for testnet-style addresses.
func FromSeed(seed []byte, network string) (*Keystore, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	mainnet := network == "mainnet"
	params := &chaincfg.TestNet
	if mainnet {
		params = &chaincfg.MainNet
	}
	master, err := bip32.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return &Keystore{master: master, mainnet: mainnet}, nil
}

// Create generates a new mnemonic, encrypts its seed under password and
// writes it to path. The mnemonic is returned for backup; it is not stored.
func Create(path, password, network string) (string, *Keystore, error) {
	if _, err := os.Stat(path); err == nil {
		return "", nil, fmt.Errorf("%w: %s", ErrExists, path)
	}
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return "", nil, err
	}
	ks, err := Import(path, mnemonic, password, network)
	if err != nil {
		return "", nil, err
	}
	return mnemonic, ks, nil
}

// Import stores the seed of an existing mnemonic at path.
func Import(path, mnemonic, password, network string) (*Keystore, error) {
	seed, err := SeedFromMnemonic(strings.TrimSpace(mnemonic), "")
	if err != nil {
		return nil, err
	}
	enc, err := EncryptSeed(seed, password)
	if err != nil {
		return nil, err
	}
	if err := storage.WriteFileAtomic(path, enc); err != nil {
		return nil, fmt.Errorf("keystore: write: %w", err)
	}
	return FromSeed(seed, network)
}

// Open decrypts the keystore at path.
func Open(path, password, network string) (*Keystore, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("keystore: read: %w", err)
	}
	seed, err := DecryptSeed(enc, password)
	if err != nil {
		return nil, err
	}
	return FromSeed(seed, network)
}

// derive walks m/44'/236'/account'/0/0.
func (k *Keystore) derive(account uint32) (*ec.PrivateKey, error) {
	key := k.master
	for _, idx := range []uint32{PurposeBIP44 + Hardened, CoinTypeBSV + Hardened, account + Hardened, 0, 0} {
		child, err := key.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
		}
		key = child
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return priv, nil
}

// ProviderKey is the identity key used for pledges and chunk decryption.
func (k *Keystore) ProviderKey() (*ec.PrivateKey, error) { return k.derive(ProviderAccount) }

// FeeKey funds ledger transactions.
func (k *Keystore) FeeKey() (*ec.PrivateKey, error) { return k.derive(FeeAccount) }

// Mainnet reports whether addresses use the mainnet prefix.
func (k *Keystore) Mainnet() bool { return k.mainnet }

// Address returns the P2PKH address of pub for the keystore's network.
func (k *Keystore) Address(pub *ec.PublicKey) (string, error) {
	addr, err := script.NewAddressFromPublicKey(pub, k.mainnet)
	if err != nil {
		return "", fmt.Errorf("keystore: address: %w", err)
	}
	return addr.AddressString, nil
}

// WriteKeyFile writes priv as hex to path with owner-only permissions.
func WriteKeyFile(path string, priv *ec.PrivateKey) error {
	if priv == nil {
		return ErrInvalidKey
	}
	return storage.WriteFileAtomic(path, []byte(hex.EncodeToString(priv.Serialize())))
}

// ReadKeyFile loads a key written by WriteKeyFile.
func ReadKeyFile(path string) (*ec.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read key file: %w", err)
	}
	return ParsePrivateKeyHex(strings.TrimSpace(string(b)))
}

// ParsePrivateKeyHex parses a 32-byte hex secp256k1 scalar.
func ParsePrivateKeyHex(s string) (*ec.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, ErrInvalidKey
	}
	priv, _ := ec.PrivateKeyFromBytes(b)
	if priv == nil {
		return nil, ErrInvalidKey
	}
	return priv, nil
}
