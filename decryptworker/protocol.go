// Package decryptworker runs chunk decryption outside the request path.
//
// A Supervisor hands decrypt jobs to a Launcher, which runs them in an
// isolated worker (a child process, or a recovered goroutine). Jobs for
// the same chunk id share one run, the number of concurrent runs is
// bounded, and every worker failure comes back to the caller as a typed
// error.
package decryptworker

// CommandDecrypt asks the worker to decrypt InputPath into OutputPath.
const CommandDecrypt = "decrypt"

// Request is one line of JSON on the worker's stdin.
type Request struct {
	Command    string `json:"command"`
	ChunkID    string `json:"chunkId"`
	InputPath  string `json:"inputPath"`
	OutputPath string `json:"outputPath"`
	PubKey     string `json:"pubKey"`
}

// Response is one line of JSON on the worker's stdout.
type Response struct {
	ChunkID string `json:"chunkId"`
	Success bool   `json:"success"`
	Length  int    `json:"length,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Job describes one decryption.
type Job struct {
	ChunkID    string
	InputPath  string
	OutputPath string
	// PubKey is the uploader's ephemeral public key, compressed hex.
	PubKey string
}

func (j Job) request() Request {
	return Request{
		Command:    CommandDecrypt,
		ChunkID:    j.ChunkID,
		InputPath:  j.InputPath,
		OutputPath: j.OutputPath,
		PubKey:     j.PubKey,
	}
}
