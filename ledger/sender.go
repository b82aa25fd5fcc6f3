package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/network"
	"github.com/bitfsorg/chunkd/tx"
	"github.com/bitfsorg/chunkd/upload"
)

// Defaults used when a SenderConfig field is zero.
const (
	DefaultConfirmTimeout = 30 * time.Second
	DefaultPollInterval   = time.Second
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	Node  network.BlockchainService
	Index Index
	// Key owns the funding coins and receives change.
	Key     *ec.PrivateKey
	FeeRate uint64
	// MinConfirmations is the depth at which a chunk counts as validated.
	// Zero accepts a transaction as soon as the node reports it.
	MinConfirmations int64
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	Logger           logrus.FieldLogger
}

// Sender writes each chunk into its own transaction. It implements
// upload.Sender.
type Sender struct {
	cfg     SenderConfig
	log     logrus.FieldLogger
	address string
	pkh     []byte
	lock    []byte

	// mu serialises coin selection so two chunks never spend one output.
	mu    sync.Mutex
	spent map[string]struct{}
}

var _ upload.Sender = (*Sender)(nil)

// NewSender validates cfg and derives the funding address.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.Node == nil || cfg.Index == nil || cfg.Key == nil {
		return nil, fmt.Errorf("%w: sender needs node, index and key", tx.ErrNilParam)
	}
	if cfg.FeeRate == 0 {
		cfg.FeeRate = tx.DefaultFeeRate
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	addr, err := script.NewAddressFromPublicKey(cfg.Key.PubKey(), true)
	if err != nil {
		return nil, fmt.Errorf("ledger: funding address: %w", err)
	}
	lock, err := tx.BuildP2PKHScript(cfg.Key.PubKey())
	if err != nil {
		return nil, err
	}
	return &Sender{
		cfg:     cfg,
		log:     logging.OrDiscard(cfg.Logger).WithField("component", "ledger"),
		address: addr.AddressString,
		pkh:     addr.PublicKeyHash,
		lock:    lock,
		spent:   make(map[string]struct{}),
	}, nil
}

// Address is the funding address.
func (s *Sender) Address() string { return s.address }

// Send broadcasts a transaction carrying data, records it in the index
// and waits for the node to report it. A transaction that was broadcast
// but not seen in time yields upload.ErrNotValidated.
func (s *Sender) Send(ctx context.Context, id string, data []byte) (string, error) {
	txid, err := s.broadcast(ctx, id, data)
	if err != nil {
		return "", err
	}
	log := s.log.WithFields(logrus.Fields{"chunk": id, "txid": txid})
	if err := s.cfg.Index.Record(ctx, id, txid); err != nil {
		log.WithError(err).Warn("index record failed")
		return txid, fmt.Errorf("%w: %w", upload.ErrNotValidated, err)
	}
	if err := s.waitSeen(ctx, txid); err != nil {
		log.WithError(err).Debug("transaction not validated")
		return txid, err
	}
	log.Debug("chunk transaction validated")
	return txid, nil
}

func (s *Sender) broadcast(ctx context.Context, id string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coins, err := s.selectCoins(ctx, len(data))
	if err != nil {
		return "", err
	}
	ctxTx, err := tx.BuildChunkTx(&tx.ChunkTxParams{
		ChunkID:    id,
		Data:       data,
		FeeInputs:  coins,
		ChangeAddr: s.pkh,
		FeeRate:    s.cfg.FeeRate,
	})
	if err != nil {
		return "", err
	}
	rawHex, err := tx.SignChunkTx(ctxTx, coins)
	if err != nil {
		return "", err
	}
	txid, err := s.cfg.Node.BroadcastTx(ctx, rawHex)
	if err != nil {
		return "", err
	}
	for _, c := range coins {
		s.spent[outpoint(c.TxID, c.Vout)] = struct{}{}
	}
	if txid == "" {
		txid = ctxTx.TxID
	}
	return txid, nil
}

// selectCoins picks the largest unspent outputs until they cover the fee.
func (s *Sender) selectCoins(ctx context.Context, dataSize int) ([]*tx.UTXO, error) {
	unspent, err := s.cfg.Node.ListUnspent(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("ledger: list unspent: %w", err)
	}
	sort.Slice(unspent, func(i, j int) bool { return unspent[i].Amount > unspent[j].Amount })

	var (
		coins []*tx.UTXO
		total uint64
	)
	for _, u := range unspent {
		if _, ok := s.spent[outpoint(u.TxID, u.Vout)]; ok {
			continue
		}
		lock := s.lock
		if u.ScriptPubKey != "" {
			if lock, err = hex.DecodeString(u.ScriptPubKey); err != nil {
				continue
			}
		}
		coins = append(coins, &tx.UTXO{
			TxID:         u.TxID,
			Vout:         u.Vout,
			Amount:       u.Amount,
			ScriptPubKey: lock,
			PrivateKey:   s.cfg.Key,
		})
		total += u.Amount
		if total >= tx.EstimateFee(tx.EstimateTxSize(len(coins), dataSize), s.cfg.FeeRate) {
			return coins, nil
		}
	}
	return nil, fmt.Errorf("%w: %s holds %d sat", ErrNoFunds, s.address, total)
}

func outpoint(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

func (s *Sender) waitSeen(ctx context.Context, txid string) error {
	deadline := time.NewTimer(s.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := s.cfg.Node.GetTxStatus(ctx, txid)
		switch {
		case err == nil && st.Confirmations >= s.cfg.MinConfirmations:
			return nil
		case err != nil && !errors.Is(err, network.ErrTxNotFound):
			s.log.WithError(err).WithField("txid", txid).Debug("status poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %s", upload.ErrNotValidated, txid)
		case <-ticker.C:
		}
	}
}
