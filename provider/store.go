package provider

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	bucketChunks  = []byte("provider_chunks")
	bucketRealIDs = []byte("provider_real_ids")
)

// Repository persists provider chunk records.
type Repository interface {
	// Get returns the record for id, or (nil, nil) if absent.
	Get(id string) (*Chunk, error)
	// Put creates or replaces a record.
	Put(c *Chunk) error
	// FindByRealID returns every record claiming realID.
	FindByRealID(realID string) ([]*Chunk, error)
}

// BoltRepository stores records in bbolt, with a realId||id index.
type BoltRepository struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Repository = (*BoltRepository)(nil)

// OpenBoltRepository opens or creates the database at dbPath.
func OpenBoltRepository(dbPath string) (*BoltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("provider: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketChunks, bucketRealIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("provider: %w", err)
	}
	return &BoltRepository{db: db}, nil
}

// Close closes the database.
func (r *BoltRepository) Close() error { return r.db.Close() }

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func realIDKey(realID, id string) []byte {
	return append([]byte(realID), id...)
}

// Get implements Repository.
func (r *BoltRepository) Get(id string) (*Chunk, error) {
	var c *Chunk
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return nil
		}
		c = &Chunk{}
		return decodeGob(data, c)
	})
	if err != nil {
		return nil, fmt.Errorf("provider: get %s: %w", id, err)
	}
	return c, nil
}

// Put implements Repository.
func (r *BoltRepository) Put(c *Chunk) error {
	data, err := encodeGob(c)
	if err != nil {
		return fmt.Errorf("provider: encode chunk: %w", err)
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if old := b.Get([]byte(c.ID)); old != nil {
			var prev Chunk
			if err := decodeGob(old, &prev); err == nil && prev.RealID != c.RealID {
				if err := tx.Bucket(bucketRealIDs).Delete(realIDKey(prev.RealID, prev.ID)); err != nil {
					return err
				}
			}
		}
		if err := b.Put([]byte(c.ID), data); err != nil {
			return fmt.Errorf("provider: put chunk: %w", err)
		}
		if c.RealID != "" {
			if err := tx.Bucket(bucketRealIDs).Put(realIDKey(c.RealID, c.ID), nil); err != nil {
				return fmt.Errorf("provider: put real id index: %w", err)
			}
		}
		return nil
	})
}

// FindByRealID implements Repository.
func (r *BoltRepository) FindByRealID(realID string) ([]*Chunk, error) {
	var out []*Chunk
	prefix := []byte(realID)
	err := r.db.View(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		c := tx.Bucket(bucketRealIDs).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := k[len(prefix):]
			data := chunks.Get(id)
			if data == nil {
				continue
			}
			var ch Chunk
			if err := decodeGob(data, &ch); err != nil {
				return err
			}
			out = append(out, &ch)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("provider: find by real id: %w", err)
	}
	return out, nil
}
