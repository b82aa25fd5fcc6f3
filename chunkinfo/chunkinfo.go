// Package chunkinfo encodes the small blobs that give multi-chunk files
// and directories a single content id.
//
// A blob is Prologue followed by a JSON object. A file blob lists the
// ordered chunk ids of the file together with their merkle root and the
// total size; a directory blob lists named entries. Blobs are stored and
// addressed like any other chunk.
package chunkinfo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bitfsorg/chunkd/digest"
)

// Prologue marks a chunk as a chunk-info blob.
var Prologue = []byte("chunkd:info:1\n")

// Blob types.
const (
	TypeFile = "file"
	TypeDir  = "dir"
)

// MaxNameLen bounds directory entry names.
const MaxNameLen = 255

// File describes a file split into several chunks.
type File struct {
	Type     string   `json:"type"`
	Chunks   []string `json:"chunks"`
	Hash     string   `json:"hash"`
	FileSize int64    `json:"filesize"`
}

// Entry is one member of a directory.
type Entry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	ID   string `json:"id"`
}

// Dir describes a directory.
type Dir struct {
	Type  string  `json:"type"`
	Files []Entry `json:"files"`
}

// NewFile builds the file blob for the ordered chunk ids.
func NewFile(chunkIDs []string, size int64) (*File, error) {
	root, err := digest.MerkleRootHex(chunkIDs)
	if err != nil {
		return nil, err
	}
	return &File{Type: TypeFile, Chunks: append([]string(nil), chunkIDs...), Hash: root, FileSize: size}, nil
}

// Verify checks the recorded merkle root against the chunk list.
func (f *File) Verify() error {
	root, err := digest.MerkleRootHex(f.Chunks)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if root != f.Hash {
		return fmt.Errorf("%w: have %s, want %s", ErrRootMismatch, root, f.Hash)
	}
	return nil
}

// Encode returns the blob bytes.
func (f *File) Encode() ([]byte, error) { return encode(f) }

// Encode returns the blob bytes. Entries must have distinct valid names.
func (d *Dir) Encode() ([]byte, error) {
	seen := make(map[string]struct{}, len(d.Files))
	for _, e := range d.Files {
		if err := validateName(e.Name); err != nil {
			return nil, err
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return encode(d)
}

// Find returns the entry called name.
func (d *Dir) Find(name string) (*Entry, bool) {
	for i := range d.Files {
		if d.Files[i].Name == name {
			return &d.Files[i], true
		}
	}
	return nil, false
}

func encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, Prologue...), body...), nil
}

// IsInfo reports whether data starts with Prologue.
func IsInfo(data []byte) bool { return bytes.HasPrefix(data, Prologue) }

// Kind returns the type of an info blob.
func Kind(data []byte) (string, error) {
	if !IsInfo(data) {
		return "", ErrNotInfo
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data[len(Prologue):], &head); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return head.Type, nil
}

// DecodeFile parses a file blob and checks its merkle root.
func DecodeFile(data []byte) (*File, error) {
	var f File
	if err := decode(data, TypeFile, &f); err != nil {
		return nil, err
	}
	for i, id := range f.Chunks {
		if !digest.Valid(id) {
			return nil, fmt.Errorf("%w: chunk %d", ErrMalformed, i)
		}
	}
	if f.FileSize < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrMalformed)
	}
	if err := f.Verify(); err != nil {
		return nil, err
	}
	return &f, nil
}

// DecodeDir parses a directory blob.
func DecodeDir(data []byte) (*Dir, error) {
	var d Dir
	if err := decode(data, TypeDir, &d); err != nil {
		return nil, err
	}
	for _, e := range d.Files {
		if err := validateName(e.Name); err != nil {
			return nil, err
		}
		if !digest.Valid(e.ID) {
			return nil, fmt.Errorf("%w: entry %q", ErrMalformed, e.Name)
		}
	}
	return &d, nil
}

func decode(data []byte, want string, v any) error {
	kind, err := Kind(data)
	if err != nil {
		return err
	}
	if kind != want {
		return fmt.Errorf("%w: type %q, want %q", ErrMalformed, kind, want)
	}
	if err := json.Unmarshal(data[len(Prologue):], v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) > MaxNameLen:
		return fmt.Errorf("%w: %d bytes", ErrInvalidName, len(name))
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
