package decryptworker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Launcher runs one request in an isolated worker and returns its reply.
// A returned error means the worker itself misbehaved; a decryption
// failure is reported through Response.Success.
type Launcher interface {
	Run(ctx context.Context, req Request) (*Response, error)
}

// maxStderr bounds how much worker stderr is quoted in errors.
const maxStderr = 512

// ExecLauncher runs each request in a fresh child process speaking the
// JSON protocol on stdin/stdout.
type ExecLauncher struct {
	Path string
	Args []string
	// Env replaces the child environment when non-nil.
	Env []string
}

var _ Launcher = (*ExecLauncher)(nil)

// Run implements Launcher.
func (l *ExecLauncher) Run(ctx context.Context, req Request) (*Response, error) {
	in, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrWorkerCrashed, err)
	}

	cmd := exec.CommandContext(ctx, l.Path, l.Args...)
	cmd.Env = l.Env
	cmd.Stdin = bytes.NewReader(append(in, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrWorkerTimeout, req.ChunkID, ctx.Err())
	}

	var resp Response
	if err := json.NewDecoder(&stdout).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %s", ErrWorkerCrashed, req.ChunkID, describeExit(runErr, stderr.String()))
	}
	return &resp, nil
}

func describeExit(err error, stderr string) string {
	msg := "no response"
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("exit code %d", exitErr.ExitCode())
	} else if err != nil {
		msg = err.Error()
	}
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderr {
		stderr = stderr[len(stderr)-maxStderr:]
	}
	if stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// InProcessLauncher runs requests on a goroutine in this process and
// converts a panic into ErrWorkerCrashed.
type InProcessLauncher struct {
	Key *ec.PrivateKey
}

var _ Launcher = (*InProcessLauncher)(nil)

// Run implements Launcher.
func (l *InProcessLauncher) Run(ctx context.Context, req Request) (*Response, error) {
	return runIsolated(ctx, req.ChunkID, func() Response { return Process(req, l.Key) })
}

func runIsolated(ctx context.Context, chunkID string, fn func() Response) (*Response, error) {
	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: chunk %s: panic: %v", ErrWorkerCrashed, chunkID, r)}
			}
		}()
		done <- result{resp: fn()}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &r.resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrWorkerTimeout, chunkID, ctx.Err())
	}
}
