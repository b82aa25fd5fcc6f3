package storage

// Store is a content-addressed byte cache. Keys are hex digests as
// produced by digest.Digest; values are opaque bytes.
type Store interface {
	Put(id string, data []byte) error
	Get(id string) ([]byte, error)
	Has(id string) (bool, error)
	Delete(id string) error
	Size(id string) (int64, error)
	List() ([]string, error)
}

var _ Store = (*FileStore)(nil)
