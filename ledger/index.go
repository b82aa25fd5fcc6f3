// Package ledger stores chunks as OP_RETURN payloads of BSV transactions.
//
// Sender is the upload backend: it funds, signs and broadcasts one
// transaction per chunk and records the txid in an Index. Source is the
// matching download backend: it resolves txids through the Index and
// reads the payload from an edge cache or the node.
package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/httpx"
)

// Index maps chunk ids to the transactions carrying them.
type Index interface {
	Record(ctx context.Context, chunkID, txid string) error
	// Lookup returns the txids recorded for chunkID, oldest first.
	// An unknown chunk yields an empty slice.
	Lookup(ctx context.Context, chunkID string) ([]string, error)
}

func validTxID(txid string) bool {
	return digest.Valid(strings.ToLower(txid))
}

var bucketIndex = []byte("ledger_index")

// BoltIndex is a local Index keyed by chunkId||seq.
type BoltIndex struct {
	db *bbolt.DB
}

var _ Index = (*BoltIndex)(nil)

// OpenBoltIndex opens or creates the index at dbPath.
func OpenBoltIndex(dbPath string) (*BoltIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIndex)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create bucket: %w", err)
	}
	return &BoltIndex{db: db}, nil
}

// Close closes the database.
func (x *BoltIndex) Close() error { return x.db.Close() }

// Record implements Index. Recording the same pair twice is a no-op.
func (x *BoltIndex) Record(_ context.Context, chunkID, txid string) error {
	if !digest.Valid(chunkID) {
		return fmt.Errorf("ledger: invalid chunk id %q", chunkID)
	}
	if !validTxID(txid) {
		return fmt.Errorf("%w: %q", ErrInvalidTxID, txid)
	}
	return x.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIndex).Bucket([]byte(chunkID))
		if b == nil {
			var err error
			if b, err = tx.Bucket(bucketIndex).CreateBucket([]byte(chunkID)); err != nil {
				return err
			}
		}
		found := false
		_ = b.ForEach(func(_, v []byte) error {
			if string(v) == txid {
				found = true
			}
			return nil
		})
		if found {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), []byte(txid))
	})
}

// Lookup implements Index.
func (x *BoltIndex) Lookup(_ context.Context, chunkID string) ([]string, error) {
	var txids []string
	err := x.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIndex).Bucket([]byte(chunkID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			txids = append(txids, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: lookup %s: %w", chunkID, err)
	}
	return txids, nil
}

func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}

// HTTPIndex talks to a remote index service:
//
//	GET  {base}/index/chunks/{id}  -> ["txid", ...]
//	POST {base}/index/chunks/{id}  <- {"txid": "..."}
type HTTPIndex struct {
	base   string
	client *retryablehttp.Client
}

var _ Index = (*HTTPIndex)(nil)

// NewHTTPIndex returns an index client for base.
func NewHTTPIndex(base string, retries int, timeout time.Duration) *HTTPIndex {
	return &HTTPIndex{base: strings.TrimRight(base, "/"), client: httpx.NewClient(retries, timeout)}
}

func (x *HTTPIndex) url(chunkID string) string {
	return x.base + "/index/chunks/" + chunkID
}

// Lookup implements Index.
func (x *HTTPIndex) Lookup(ctx context.Context, chunkID string) ([]string, error) {
	body, err := httpx.Get(ctx, x.client, x.url(chunkID), 1<<20)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: index lookup: %w", err)
	}
	var txids []string
	if err := json.Unmarshal(body, &txids); err != nil {
		return nil, fmt.Errorf("ledger: index lookup: decode: %w", err)
	}
	out := txids[:0]
	for _, t := range txids {
		if validTxID(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Record implements Index.
func (x *HTTPIndex) Record(ctx context.Context, chunkID, txid string) error {
	if !validTxID(txid) {
		return fmt.Errorf("%w: %q", ErrInvalidTxID, txid)
	}
	body, err := json.Marshal(map[string]string{"txid": txid})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, x.url(chunkID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger: index record: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: index record: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("ledger: index record: HTTP %d", resp.StatusCode)
	}
	return nil
}
