package decryptworker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/chunkd/chunkcrypt"
	"github.com/bitfsorg/chunkd/storage"
)

// Serve is the worker side of the protocol. It reads requests from r
// until EOF and writes one response per request to w.
func Serve(r io.Reader, w io.Writer, key *ec.PrivateKey) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decryptworker: read request: %w", err)
		}
		if err := enc.Encode(Process(req, key)); err != nil {
			return fmt.Errorf("decryptworker: write response: %w", err)
		}
	}
}

// Process executes a single request.
func Process(req Request, key *ec.PrivateKey) Response {
	resp := Response{ChunkID: req.ChunkID}
	n, err := process(req, key)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Length = n
	return resp
}

func process(req Request, key *ec.PrivateKey) (int, error) {
	if req.Command != CommandDecrypt {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	if req.InputPath == "" || req.OutputPath == "" {
		return 0, fmt.Errorf("%w: missing path", ErrInvalidJob)
	}
	pub, err := chunkcrypt.ParsePubKey(req.PubKey)
	if err != nil {
		return 0, err
	}
	ciphertext, err := os.ReadFile(req.InputPath)
	if err != nil {
		return 0, fmt.Errorf("read input: %w", err)
	}
	plaintext, err := chunkcrypt.Open(ciphertext, key, pub)
	if err != nil {
		return 0, err
	}
	if err := storage.WriteFileAtomic(req.OutputPath, plaintext); err != nil {
		return 0, err
	}
	return len(plaintext), nil
}
