// Package download fetches content by id: cache first, then remote
// sources in priority order. Concurrent requests for one chunk share a
// single fetch, claimed by an atomic transition to IN_PROGRESS; the
// others wait for its outcome.
package download

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/chunkd/chunkinfo"
	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/metrics"
	"github.com/bitfsorg/chunkd/notify"
	"github.com/bitfsorg/chunkd/repository"
	"github.com/bitfsorg/chunkd/storage"
)

// Defaults used when an Options field is zero.
const (
	DefaultConcurrentDownloadDelay = 500 * time.Millisecond
	DefaultFetchWorkers            = 8
)

// Encoding selects the representation GetFile returns.
type Encoding string

const (
	EncodingRaw    Encoding = "raw"
	EncodingUTF8   Encoding = "utf8"
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// Options configures a Downloader.
type Options struct {
	// ConcurrentDownloadDelay bounds how long a request waits for another
	// request's fetch of the same chunk before looking again.
	ConcurrentDownloadDelay time.Duration
	// FetchWorkers bounds concurrent chunk fetches within one file.
	FetchWorkers int

	Hub      *notify.Hub
	Logger   logrus.FieldLogger
	Observer metrics.Observer
}

// Downloader is the client-side download pipeline.
type Downloader struct {
	repo    repository.Repository
	cache   storage.Store
	sources []Source
	opts    Options
	hub     *notify.Hub
	log     logrus.FieldLogger
	obs     metrics.Observer
}

// New returns a Downloader probing sources in the given order.
func New(repo repository.Repository, cache storage.Store, sources []Source, opts Options) *Downloader {
	if opts.ConcurrentDownloadDelay <= 0 {
		opts.ConcurrentDownloadDelay = DefaultConcurrentDownloadDelay
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = DefaultFetchWorkers
	}
	hub := opts.Hub
	if hub == nil {
		hub = notify.NewHub()
	}
	return &Downloader{
		repo:    repo,
		cache:   cache,
		sources: append([]Source(nil), sources...),
		opts:    opts,
		hub:     hub,
		log:     logging.OrDiscard(opts.Logger).WithField("component", "download"),
		obs:     metrics.OrNop(opts.Observer),
	}
}

// cached returns verified cache bytes for id, or nil.
func (d *Downloader) cached(id string) []byte {
	data, err := d.cache.Get(id)
	if err != nil || !digest.Verify(id, data) {
		return nil
	}
	return data
}

// GetChunk returns the bytes of chunk id. With useCache false the cache
// is bypassed and the sources are asked again.
func (d *Downloader) GetChunk(ctx context.Context, id string, useCache bool) ([]byte, error) {
	if !digest.Valid(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	timer := time.NewTimer(d.opts.ConcurrentDownloadDelay)
	defer timer.Stop()
	waited := false
	for {
		data, done, err := d.attempt(ctx, id, useCache, &waited, timer)
		if done {
			return data, err
		}
		useCache = true
	}
}

// attempt makes one pass of GetChunk. It reports done=false after waiting
// for another caller's claim on id. A caller that waited and then finds the
// chunk FAILED shares that outcome instead of probing the sources again.
func (d *Downloader) attempt(ctx context.Context, id string, useCache bool, waited *bool, timer *time.Timer) ([]byte, bool, error) {
	wake, release := d.hub.Wait(id)
	defer release()

	c, err := d.repo.CreateOrGet(ctx, id)
	if err != nil {
		return nil, true, err
	}

	from := []repository.DownloadStatus{repository.DLNotStarted, repository.DLFailed}
	switch c.DLStatus {
	case repository.DLCompleted:
		if useCache {
			if data := d.cached(id); data != nil {
				return data, true, nil
			}
		}
		from = append(from, repository.DLCompleted)
	case repository.DLFailed:
		if *waited {
			return nil, true, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
		}
	}

	won, err := d.repo.CompareAndSetDLStatus(ctx, id, from, repository.DLInProgress)
	if err != nil {
		return nil, true, err
	}
	if won {
		data, err := d.fetch(ctx, id)
		return data, true, err
	}

	*waited = true
	timer.Reset(d.opts.ConcurrentDownloadDelay)
	select {
	case <-wake:
	case <-timer.C:
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
	return nil, false, nil
}

// fetch probes the sources for id. The caller holds the IN_PROGRESS claim.
func (d *Downloader) fetch(ctx context.Context, id string) ([]byte, error) {
	defer d.hub.Broadcast(id)
	// The claim must be released even if ctx is cancelled mid-fetch.
	bg := context.WithoutCancel(ctx)
	log := d.log.WithField("chunk", id)

	for _, src := range d.sources {
		if ctx.Err() != nil {
			break
		}
		data, err := src.Fetch(ctx, id)
		if err != nil {
			log.WithError(err).WithField("source", src.Name()).Debug("source miss")
			continue
		}
		if digest.Digest(data) != id {
			d.obs.SourceMismatch(id, src.Name())
			log.WithField("source", src.Name()).Warn("source returned bytes that do not match id")
			continue
		}
		if err := d.cache.Put(id, data); err != nil {
			d.release(bg, id)
			return nil, fmt.Errorf("download: cache %s: %w", id, err)
		}
		if err := d.repo.CompleteDownload(bg, id, int64(len(data))); err != nil {
			d.release(bg, id)
			return nil, err
		}
		d.obs.ChunkDownloaded(id, src.Name(), len(data))
		log.WithFields(logrus.Fields{"source": src.Name(), "bytes": len(data)}).Debug("chunk downloaded")
		return data, nil
	}

	d.release(bg, id)
	d.obs.ChunkDownloadFailed(id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
}

func (d *Downloader) release(ctx context.Context, id string) {
	if err := d.repo.SetDLStatus(ctx, id, repository.DLFailed); err != nil {
		d.log.WithError(err).WithField("chunk", id).Error("mark download failed")
	}
}

// GetFile returns the content addressed by contentID. A chunk-info blob
// is expanded into the file it describes, with the merkle root and size
// checked.
func (d *Downloader) GetFile(ctx context.Context, contentID string, enc Encoding) ([]byte, error) {
	data, err := d.GetChunk(ctx, contentID, true)
	if err != nil {
		return nil, err
	}
	if kind, err := chunkinfo.Kind(data); err == nil && kind == chunkinfo.TypeFile {
		info, err := chunkinfo.DecodeFile(data)
		if err != nil {
			return nil, err
		}
		if data, err = d.fetchAll(ctx, info.Chunks); err != nil {
			return nil, err
		}
		if int64(len(data)) != info.FileSize {
			return nil, fmt.Errorf("%w: got %d, want %d", chunkinfo.ErrSizeMismatch, len(data), info.FileSize)
		}
	}
	return Encode(data, enc)
}

// GetDir returns the directory blob addressed by contentID.
func (d *Downloader) GetDir(ctx context.Context, contentID string) (*chunkinfo.Dir, error) {
	data, err := d.GetChunk(ctx, contentID, true)
	if err != nil {
		return nil, err
	}
	if kind, _ := chunkinfo.Kind(data); kind != chunkinfo.TypeDir {
		return nil, fmt.Errorf("%w: %s", ErrNotDir, contentID)
	}
	return chunkinfo.DecodeDir(data)
}

// ReassembleFile concatenates the chunks mapped to fileID in offset order.
func (d *Downloader) ReassembleFile(ctx context.Context, fileID string) ([]byte, error) {
	maps, err := d.repo.FileChunks(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(maps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	ids := make([]string, len(maps))
	for i, m := range maps {
		if m.Offset != i {
			return nil, fmt.Errorf("%w: %s has a gap at offset %d", ErrFileNotFound, fileID, i)
		}
		ids[i] = m.ChunkID
	}
	return d.fetchAll(ctx, ids)
}

func (d *Downloader) fetchAll(ctx context.Context, ids []string) ([]byte, error) {
	parts := make([][]byte, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.FetchWorkers)
	for i, id := range ids {
		g.Go(func() error {
			data, err := d.GetChunk(gctx, id, true)
			parts[i] = data
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// Encode renders data in the requested encoding.
func Encode(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingRaw, "":
		return data, nil
	case EncodingUTF8:
		if !utf8.Valid(data) {
			return nil, ErrNotUTF8
		}
		return data, nil
	case EncodingHex:
		out := make([]byte, hex.EncodedLen(len(data)))
		hex.Encode(out, data)
		return out, nil
	case EncodingBase64:
		out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
		base64.StdEncoding.Encode(out, data)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}
