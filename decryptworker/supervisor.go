package decryptworker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/bitfsorg/chunkd/logging"
)

const (
	// DefaultConcurrency bounds simultaneous workers.
	DefaultConcurrency = 4

	// DefaultTimeout bounds a single decryption.
	DefaultTimeout = 60 * time.Second
)

// Supervisor deduplicates and bounds decrypt jobs.
type Supervisor struct {
	launcher Launcher
	sem      *semaphore.Weighted
	group    singleflight.Group
	timeout  time.Duration
	log      logrus.FieldLogger
}

// Options configures a Supervisor. Zero values select defaults.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Logger      logrus.FieldLogger
}

// NewSupervisor creates a Supervisor that runs jobs through launcher.
func NewSupervisor(launcher Launcher, opts Options) *Supervisor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Supervisor{
		launcher: launcher,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		timeout:  opts.Timeout,
		log:      logging.OrDiscard(opts.Logger).WithField("component", "decryptworker"),
	}
}

// Decrypt runs job, joining an in-flight run for the same chunk id if
// one exists. The shared run is not cancelled when one caller's ctx is;
// that caller just stops waiting.
func (s *Supervisor) Decrypt(ctx context.Context, job Job) error {
	if job.ChunkID == "" || job.InputPath == "" || job.OutputPath == "" || job.PubKey == "" {
		return ErrInvalidJob
	}
	ch := s.group.DoChan(job.ChunkID, func() (any, error) {
		return nil, s.run(job)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: chunk %s: waiting for worker slot", ErrWorkerTimeout, job.ChunkID)
	}
	defer s.sem.Release(1)

	log := s.log.WithField("chunk", job.ChunkID)
	start := time.Now()
	resp, err := s.launcher.Run(ctx, job.request())
	if err != nil {
		log.WithError(err).Warn("decrypt worker failed")
		return err
	}
	if !resp.Success {
		log.WithField("reason", resp.Error).Debug("decryption rejected")
		return fmt.Errorf("%w: chunk %s: %s", ErrWorkerFailed, job.ChunkID, resp.Error)
	}
	log.WithFields(logrus.Fields{"bytes": resp.Length, "elapsed": time.Since(start)}).Debug("chunk decrypted")
	return nil
}
