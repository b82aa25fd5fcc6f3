package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bitfsorg/chunkd/digest"
)

// tempPattern names in-flight writes inside a shard directory.
const tempPattern = ".tmp-*"

// FileStore implements Store on the local filesystem.
// Files are stored at {baseDir}/{id[:2]}/{id}; the first two hex chars
// shard the directory.
//
// Writes go to a temp file in the shard directory and are renamed into
// place. Readers never observe a partial file.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file-based content store rooted at baseDir.
// The directory is created if it does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// IDToPath converts a content id to its filesystem path under baseDir.
func IDToPath(baseDir, id string) string {
	return filepath.Join(baseDir, id[:2], id)
}

// BaseDir returns the root directory of the store.
func (fs *FileStore) BaseDir() string { return fs.baseDir }

// Path returns the on-disk path of id. The file may not exist.
func (fs *FileStore) Path(id string) (string, error) {
	if !digest.Valid(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return IDToPath(fs.baseDir, id), nil
}

// Put stores data under id atomically.
func (fs *FileStore) Put(id string, data []byte) error {
	path, err := fs.Path(id)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Get retrieves the bytes stored under id.
func (fs *FileStore) Get(id string) ([]byte, error) {
	path, err := fs.Path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return data, nil
}

// Has checks if content exists for id.
func (fs *FileStore) Has(id string) (bool, error) {
	path, err := fs.Path(id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// Delete removes content by id.
func (fs *FileStore) Delete(id string) error {
	path, err := fs.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Size returns the size in bytes of the content stored under id.
func (fs *FileStore) Size(id string) (int64, error) {
	path, err := fs.Path(id)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return info.Size(), nil
}

// List returns all stored ids by scanning the shard directories.
// Temp files from interrupted writes are skipped.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var result []string
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !digest.Valid(f.Name()) {
				continue
			}
			result = append(result, f.Name())
		}
	}
	return result, nil
}
