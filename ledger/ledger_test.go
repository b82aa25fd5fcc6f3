package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/download"
	"github.com/bitfsorg/chunkd/network"
	"github.com/bitfsorg/chunkd/notify"
	"github.com/bitfsorg/chunkd/repository"
	"github.com/bitfsorg/chunkd/storage"
	"github.com/bitfsorg/chunkd/tx"
	"github.com/bitfsorg/chunkd/upload"
)

// fakeNode keeps a tiny mempool: broadcast transactions become
// retrievable and their outputs become spendable.
type fakeNode struct {
	mu      sync.Mutex
	txs     map[string][]byte
	unspent map[string]*network.UTXO
	hidden  bool // GetTxStatus never finds anything
}

func newFakeNode(t *testing.T, key *ec.PrivateKey, amount uint64) *fakeNode {
	t.Helper()
	lock, err := tx.BuildP2PKHScript(key.PubKey())
	require.NoError(t, err)
	n := &fakeNode{txs: make(map[string][]byte), unspent: make(map[string]*network.UTXO)}
	if amount > 0 {
		funding := strings.Repeat("ab", 32)
		n.unspent[outpoint(funding, 0)] = &network.UTXO{
			TxID: funding, Vout: 0, Amount: amount, ScriptPubKey: hex.EncodeToString(lock),
		}
	}
	return n
}

func (n *fakeNode) service() *network.MockBlockchainService {
	return &network.MockBlockchainService{
		ListUnspentFn: func(context.Context, string) ([]*network.UTXO, error) {
			n.mu.Lock()
			defer n.mu.Unlock()
			var out []*network.UTXO
			for _, u := range n.unspent {
				c := *u
				out = append(out, &c)
			}
			return out, nil
		},
		BroadcastTxFn: func(_ context.Context, rawHex string) (string, error) {
			t, err := transaction.NewTransactionFromHex(rawHex)
			if err != nil {
				return "", err
			}
			n.mu.Lock()
			defer n.mu.Unlock()
			txid := t.TxID().String()
			for _, in := range t.Inputs {
				op := outpoint(in.SourceTXID.String(), in.SourceTxOutIndex)
				if _, ok := n.unspent[op]; !ok {
					return "", network.ErrBroadcastRejected
				}
				delete(n.unspent, op)
			}
			for i, out := range t.Outputs {
				if out.Satoshis == 0 {
					continue
				}
				n.unspent[outpoint(txid, uint32(i))] = &network.UTXO{
					TxID: txid, Vout: uint32(i), Amount: out.Satoshis,
					ScriptPubKey: hex.EncodeToString(*out.LockingScript),
				}
			}
			n.txs[txid] = t.Bytes()
			return txid, nil
		},
		GetRawTxFn: func(_ context.Context, txid string) ([]byte, error) {
			n.mu.Lock()
			defer n.mu.Unlock()
			raw, ok := n.txs[txid]
			if !ok {
				return nil, network.ErrTxNotFound
			}
			return raw, nil
		},
		GetTxStatusFn: func(_ context.Context, txid string) (*network.TxStatus, error) {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.txs[txid]; !ok || n.hidden {
				return nil, network.ErrTxNotFound
			}
			return &network.TxStatus{}, nil
		},
	}
}

func newIndex(t *testing.T) *BoltIndex {
	t.Helper()
	idx, err := OpenBoltIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func newKey(t *testing.T) *ec.PrivateKey {
	t.Helper()
	key, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return key
}

func txid(b byte) string { return strings.Repeat(hex.EncodeToString([]byte{b}), 32) }

func TestBoltIndex(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	id := digest.Digest([]byte("chunk"))

	got, err := idx.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, idx.Record(ctx, id, txid(2)))
	require.NoError(t, idx.Record(ctx, id, txid(1)))
	require.NoError(t, idx.Record(ctx, id, txid(2)))

	got, err = idx.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{txid(2), txid(1)}, got)

	assert.ErrorIs(t, idx.Record(ctx, id, "nope"), ErrInvalidTxID)
	assert.Error(t, idx.Record(ctx, "bad", txid(1)))
}

func TestHTTPIndex(t *testing.T) {
	id := digest.Digest([]byte("chunk"))
	var (
		mu      sync.Mutex
		entries = map[string][]string{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := strings.TrimPrefix(r.URL.Path, "/index/chunks/")
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			list, ok := entries[chunk]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(append(list, "garbage"))
		case http.MethodPost:
			var body struct {
				TxID string `json:"txid"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			entries[chunk] = append(entries[chunk], body.TxID)
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	idx := NewHTTPIndex(srv.URL+"/", 0, time.Second)
	ctx := context.Background()

	got, err := idx.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, idx.Record(ctx, id, txid(7)))
	got, err = idx.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{txid(7)}, got)

	assert.ErrorIs(t, idx.Record(ctx, id, "short"), ErrInvalidTxID)
}

func TestSendAndFetchThroughNode(t *testing.T) {
	key := newKey(t)
	node := newFakeNode(t, key, 1_000_000)
	idx := newIndex(t)
	s, err := NewSender(SenderConfig{Node: node.service(), Index: idx, Key: key, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	src, err := NewSource(SourceConfig{Index: idx, Node: node.service()})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		data := []byte(strings.Repeat("x", i+1))
		id := digest.Digest(data)
		txid, err := s.Send(ctx, id, data)
		require.NoError(t, err, "send %d spends the previous change", i)

		indexed, err := idx.Lookup(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{txid}, indexed)

		got, err := src.Fetch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestSendNotValidated(t *testing.T) {
	key := newKey(t)
	node := newFakeNode(t, key, 1_000_000)
	node.hidden = true
	s, err := NewSender(SenderConfig{
		Node: node.service(), Index: newIndex(t), Key: key,
		ConfirmTimeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	data := []byte("never seen")
	txid, err := s.Send(context.Background(), digest.Digest(data), data)
	assert.NotEmpty(t, txid)
	assert.ErrorIs(t, err, upload.ErrNotValidated)
}

func TestSendNoFunds(t *testing.T) {
	key := newKey(t)
	s, err := NewSender(SenderConfig{Node: newFakeNode(t, key, 0).service(), Index: newIndex(t), Key: key})
	require.NoError(t, err)

	data := []byte("broke")
	_, err = s.Send(context.Background(), digest.Digest(data), data)
	assert.ErrorIs(t, err, ErrNoFunds)
}

func TestNewSenderRequiresDeps(t *testing.T) {
	_, err := NewSender(SenderConfig{})
	assert.ErrorIs(t, err, tx.ErrNilParam)
	_, err = NewSource(SourceConfig{Index: newIndex(t)})
	assert.ErrorIs(t, err, tx.ErrNilParam)
}

func TestFetchFromEdgeVerifiesPayload(t *testing.T) {
	data := []byte("edge served")
	id := digest.Digest(data)
	idx := newIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Record(ctx, id, txid(1)))
	require.NoError(t, idx.Record(ctx, id, txid(2)))

	var hits []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/tx/" + txid(1) + "/data":
			_, _ = w.Write([]byte("tampered"))
		case "/tx/" + txid(2) + "/data":
			_, _ = w.Write(data)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := NewSource(SourceConfig{Index: idx, EdgeURL: srv.URL})
	require.NoError(t, err)
	got, err := src.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Len(t, hits, 2)
}

func TestFetchErrors(t *testing.T) {
	idx := newIndex(t)
	node := newFakeNode(t, newKey(t), 0)
	src, err := NewSource(SourceConfig{Index: idx, Node: node.service()})
	require.NoError(t, err)
	ctx := context.Background()

	id := digest.Digest([]byte("unknown"))
	_, err = src.Fetch(ctx, id)
	assert.ErrorIs(t, err, ErrNotIndexed)

	require.NoError(t, idx.Record(ctx, id, txid(9)))
	_, err = src.Fetch(ctx, id)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUploadDownloadOverLedger(t *testing.T) {
	key := newKey(t)
	node := newFakeNode(t, key, 10_000_000)
	idx := newIndex(t)
	sender, err := NewSender(SenderConfig{Node: node.service(), Index: idx, Key: key, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	source, err := NewSource(SourceConfig{Index: idx, Node: node.service()})
	require.NoError(t, err)

	dir := t.TempDir()
	upRepo, err := repository.Open(filepath.Join(dir, "up.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = upRepo.Close() })
	upCache, err := storage.NewFileStore(filepath.Join(dir, "up-cache"))
	require.NoError(t, err)
	up := upload.New(upRepo, upCache, sender, upload.Options{ChunkSize: 32, LoopInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = up.Close() })

	content := []byte(strings.Repeat("ledger backed content ", 8))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fileID, err := up.UploadFile(ctx, content)
	require.NoError(t, err)

	downRepo, err := repository.Open(filepath.Join(dir, "down.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = downRepo.Close() })
	downCache, err := storage.NewFileStore(filepath.Join(dir, "down-cache"))
	require.NoError(t, err)
	down := download.New(downRepo, downCache, []download.Source{source}, download.Options{Hub: notify.NewHub()})

	got, err := down.GetFile(ctx, fileID, download.EncodingRaw)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
