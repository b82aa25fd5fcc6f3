// Package upload moves locally produced chunks to the storage backend.
//
// Chunks are hashed, written to the local cache and queued in the
// repository. A background loop drains the queue with bounded
// concurrency; each chunk is claimed with an atomic ENQUEUED to
// IN_PROGRESS transition, so at most one send per chunk is in flight no
// matter how many callers asked for it.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/metrics"
	"github.com/bitfsorg/chunkd/notify"
	"github.com/bitfsorg/chunkd/repository"
	"github.com/bitfsorg/chunkd/storage"
)

// Defaults used when an Options field is zero.
const (
	DefaultRetryLimit   = 3
	DefaultLoopInterval = time.Second
	DefaultWorkers      = 4
	DefaultFileWorkers  = 16

	loopBatch = 100
)

// Sender pushes one chunk to the storage backend and returns the id of
// the record it created there. Returning ErrNotValidated (or an error
// wrapping it) means the data was sent but not confirmed.
type Sender interface {
	Send(ctx context.Context, id string, data []byte) (txID string, err error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, id string, data []byte) (string, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, id string, data []byte) (string, error) {
	return f(ctx, id, data)
}

// Options configures an Uploader.
type Options struct {
	// ChunkSize is the split size for UploadFile.
	ChunkSize int
	// RetryLimit bounds both the send and the validation retry budgets.
	RetryLimit int
	// LoopInterval is the fallback poll period for waiters and the pause
	// between retry rounds of the background loop.
	LoopInterval time.Duration
	// Workers bounds concurrent sends.
	Workers int
	// FileWorkers bounds concurrent chunk uploads within one file.
	FileWorkers int

	Hub      *notify.Hub
	Logger   logrus.FieldLogger
	Observer metrics.Observer
}

// Uploader is the client-side upload pipeline.
type Uploader struct {
	repo   repository.Repository
	cache  storage.Store
	sender Sender
	opts   Options
	hub    *notify.Hub
	log    logrus.FieldLogger
	obs    metrics.Observer

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // guards wg.Add against Close
	wg     sync.WaitGroup

	running atomic.Bool
	pending atomic.Bool
	closed  atomic.Bool
}

// New returns an Uploader. Close stops its background loop.
func New(repo repository.Repository, cache storage.Store, sender Sender, opts Options) *Uploader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = storage.DefaultChunkSize
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = DefaultRetryLimit
	}
	if opts.LoopInterval <= 0 {
		opts.LoopInterval = DefaultLoopInterval
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FileWorkers <= 0 {
		opts.FileWorkers = DefaultFileWorkers
	}
	hub := opts.Hub
	if hub == nil {
		hub = notify.NewHub()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Uploader{
		repo:   repo,
		cache:  cache,
		sender: sender,
		opts:   opts,
		hub:    hub,
		log:    logging.OrDiscard(opts.Logger).WithField("component", "upload"),
		obs:    metrics.OrNop(opts.Observer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops the background loop and waits for in-flight sends.
func (u *Uploader) Close() error {
	u.mu.Lock()
	u.closed.Store(true)
	u.mu.Unlock()
	u.cancel()
	u.wg.Wait()
	return nil
}

// persist writes data to the cache unless it is already there.
func (u *Uploader) persist(id string, data []byte) error {
	ok, err := u.cache.Has(id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return u.cache.Put(id, data)
}

// EnqueueChunksForUpload caches and queues chunks of fileID in order and
// returns their ids. It does not wait for any network I/O.
func (u *Uploader) EnqueueChunksForUpload(ctx context.Context, chunks [][]byte, fileID string) ([]string, error) {
	if u.closed.Load() {
		return nil, ErrClosed
	}
	ids := make([]string, len(chunks))
	rows := make([]*repository.Chunk, 0, len(chunks))
	maps := make([]repository.FileMap, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for i, data := range chunks {
		id := digest.Digest(data)
		ids[i] = id
		maps[i] = repository.FileMap{FileID: fileID, Offset: i, ChunkID: id}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := u.persist(id, data); err != nil {
			return nil, fmt.Errorf("upload: cache %s: %w", id, err)
		}
		rows = append(rows, &repository.Chunk{
			ID:       id,
			Size:     int64(len(data)),
			ULStatus: repository.ULEnqueued,
			DLStatus: repository.DLCompleted,
		})
	}

	if err := u.repo.BulkCreate(ctx, rows, true); err != nil {
		return nil, err
	}
	unique := make([]string, 0, len(rows))
	for _, r := range rows {
		unique = append(unique, r.ID)
	}
	if _, err := u.repo.ResetULStatus(ctx, unique,
		[]repository.UploadStatus{repository.ULNotStarted, repository.ULFailed}, repository.ULEnqueued); err != nil {
		return nil, err
	}
	if fileID != "" {
		if err := u.repo.CreateFileMaps(ctx, maps); err != nil {
			return nil, err
		}
	}
	for _, id := range unique {
		u.obs.ChunkEnqueued(id)
	}
	u.log.WithFields(logrus.Fields{"file": fileID, "chunks": len(chunks)}).Debug("chunks enqueued")
	u.schedule()
	return ids, nil
}

// UploadChunk caches and queues one chunk and waits until the backend
// has it, or until one of its retry budgets is exhausted.
func (u *Uploader) UploadChunk(ctx context.Context, data []byte) (string, error) {
	if u.closed.Load() {
		return "", ErrClosed
	}
	id := digest.Digest(data)
	if err := u.persist(id, data); err != nil {
		return "", fmt.Errorf("upload: cache %s: %w", id, err)
	}
	c, err := u.repo.CreateOrGet(ctx, id)
	if err != nil {
		return "", err
	}
	if c.DLStatus != repository.DLCompleted {
		if err := u.repo.CompleteDownload(ctx, id, int64(len(data))); err != nil {
			return "", err
		}
	}
	if err := u.enqueue(ctx, id, repository.ULNotStarted); err != nil {
		return "", err
	}
	return id, u.wait(ctx, id)
}

func (u *Uploader) enqueue(ctx context.Context, id string, from repository.UploadStatus) error {
	ok, err := u.repo.CompareAndSetULStatus(ctx, id, []repository.UploadStatus{from}, repository.ULEnqueued)
	if err != nil {
		return err
	}
	if ok {
		u.obs.ChunkEnqueued(id)
		u.schedule()
	}
	return nil
}

// wait blocks until id is COMPLETED, re-queueing failed attempts while
// both budgets allow.
func (u *Uploader) wait(ctx context.Context, id string) error {
	timer := time.NewTimer(u.opts.LoopInterval)
	defer timer.Stop()
	for {
		if done, err := u.waitOnce(ctx, id, timer); done {
			return err
		}
	}
}

// waitOnce checks the status of id once and, unless it is final, blocks
// until the next notification or tick. It reports whether waiting is over.
func (u *Uploader) waitOnce(ctx context.Context, id string, timer *time.Timer) (bool, error) {
	wake, release := u.hub.Wait(id)
	defer release()

	c, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return true, err
	}
	if c == nil {
		return true, fmt.Errorf("upload: chunk %s: %w", id, repository.ErrNotFound)
	}
	switch c.ULStatus {
	case repository.ULCompleted:
		return true, nil
	case repository.ULFailed:
		if c.RetryCount >= u.opts.RetryLimit {
			return true, fmt.Errorf("%w %s", ErrUploadFailed, id)
		}
		if c.ValidateRetryCount >= u.opts.RetryLimit {
			return true, fmt.Errorf("%w %s", ErrValidateFailed, id)
		}
		if err := u.enqueue(ctx, id, repository.ULFailed); err != nil {
			return true, err
		}
	case repository.ULNotStarted:
		if err := u.enqueue(ctx, id, repository.ULNotStarted); err != nil {
			return true, err
		}
	case repository.ULEnqueued:
		u.schedule()
	}

	timer.Reset(u.opts.LoopInterval)
	select {
	case <-wake:
	case <-timer.C:
	case <-ctx.Done():
		return true, ctx.Err()
	case <-u.ctx.Done():
		return true, ErrClosed
	}
	return false, nil
}

// schedule starts the background loop unless it is already running. A
// request that arrives while the loop is running makes it go round once
// more.
func (u *Uploader) schedule() {
	u.pending.Store(true)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed.Load() || !u.running.CompareAndSwap(false, true) {
		return
	}
	u.wg.Add(1)
	go u.loop()
}

func (u *Uploader) loop() {
	defer u.wg.Done()
	for {
		u.pending.Store(false)
		again := u.drain()
		if again {
			u.pending.Store(true)
			select {
			case <-u.ctx.Done():
			case <-time.After(u.opts.LoopInterval):
			}
		}
		u.running.Store(false)
		if u.ctx.Err() != nil || !u.pending.Load() || !u.running.CompareAndSwap(false, true) {
			return
		}
	}
}

// drain sends every ENQUEUED chunk, then re-queues failed chunks that
// still have budget. It reports whether any were re-queued.
func (u *Uploader) drain() bool {
	for u.ctx.Err() == nil {
		rows, err := u.repo.ListByULStatus(u.ctx, repository.ULEnqueued, loopBatch)
		if err != nil {
			u.log.WithError(err).Error("list enqueued chunks")
			return false
		}
		if len(rows) == 0 {
			break
		}
		g := new(errgroup.Group)
		g.SetLimit(u.opts.Workers)
		for _, row := range rows {
			id := row.ID
			g.Go(func() error {
				u.uploadOne(id)
				return nil
			})
		}
		_ = g.Wait()
	}
	return u.requeueFailed()
}

func (u *Uploader) requeueFailed() bool {
	if u.ctx.Err() != nil {
		return false
	}
	rows, err := u.repo.ListByULStatus(u.ctx, repository.ULFailed, loopBatch)
	if err != nil {
		u.log.WithError(err).Error("list failed chunks")
		return false
	}
	requeued := false
	for _, row := range rows {
		if row.RetryCount >= u.opts.RetryLimit || row.ValidateRetryCount >= u.opts.RetryLimit {
			continue
		}
		ok, err := u.repo.CompareAndSetULStatus(u.ctx, row.ID,
			[]repository.UploadStatus{repository.ULFailed}, repository.ULEnqueued)
		if err != nil {
			u.log.WithError(err).WithField("chunk", row.ID).Error("requeue chunk")
			continue
		}
		requeued = requeued || ok
	}
	return requeued
}

func (u *Uploader) uploadOne(id string) {
	ctx := u.ctx
	ok, err := u.repo.CompareAndSetULStatus(ctx, id,
		[]repository.UploadStatus{repository.ULEnqueued}, repository.ULInProgress)
	if err != nil {
		u.log.WithError(err).WithField("chunk", id).Error("claim chunk")
		return
	}
	if !ok {
		return
	}
	u.hub.Broadcast(id)
	defer u.hub.Broadcast(id)

	log := u.log.WithField("chunk", id)
	// Status writes must land even if the uploader is closing.
	bg := context.WithoutCancel(ctx)

	data, err := u.cache.Get(id)
	if err == nil && !digest.Verify(id, data) {
		err = fmt.Errorf("cached bytes do not match %s", id)
	}
	if err != nil {
		log.WithError(err).Error("read cached chunk")
		u.fail(bg, id, false)
		return
	}

	txID, err := u.sender.Send(ctx, id, data)
	switch {
	case errors.Is(err, ErrNotValidated):
		log.WithError(err).Warn("chunk not validated")
		u.fail(bg, id, true)
	case err != nil:
		log.WithError(err).Warn("send chunk")
		u.fail(bg, id, false)
	default:
		if err := u.repo.CompleteUpload(bg, id, txID); err != nil {
			log.WithError(err).Error("mark chunk uploaded")
			return
		}
		u.obs.ChunkUploaded(id, len(data))
		log.WithField("tx", txID).Info("chunk uploaded")
	}
}

func (u *Uploader) fail(ctx context.Context, id string, validation bool) {
	if err := u.repo.FailUpload(ctx, id, validation); err != nil {
		u.log.WithError(err).WithField("chunk", id).Error("mark chunk failed")
		return
	}
	u.obs.ChunkUploadFailed(id, validation)
}
