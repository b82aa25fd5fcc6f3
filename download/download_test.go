package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/metrics"
	"github.com/bitfsorg/chunkd/notify"
	"github.com/bitfsorg/chunkd/repository"
	"github.com/bitfsorg/chunkd/storage"
	"github.com/bitfsorg/chunkd/upload"
)

// memSource serves chunks from a map and counts fetches.
type memSource struct {
	name    string
	mu      sync.Mutex
	chunks  map[string][]byte
	fetches atomic.Int32
	delay   time.Duration
}

func newMemSource(name string) *memSource {
	return &memSource{name: name, chunks: make(map[string][]byte)}
}

func (s *memSource) Name() string { return s.name }

func (s *memSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	s.fetches.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.chunks[id]
	if !ok {
		return nil, errors.New("not here")
	}
	return append([]byte(nil), data...), nil
}

func (s *memSource) put(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[id] = append([]byte(nil), data...)
}

func (s *memSource) Send(_ context.Context, id string, data []byte) (string, error) {
	s.put(id, data)
	return "tx-" + id[:8], nil
}

type recordingObserver struct {
	metrics.Nop
	mu         sync.Mutex
	mismatches []string
	downloads  []string
	failures   []string
}

func (o *recordingObserver) SourceMismatch(_, source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mismatches = append(o.mismatches, source)
}

func (o *recordingObserver) ChunkDownloaded(_, source string, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.downloads = append(o.downloads, source)
}

func (o *recordingObserver) ChunkDownloadFailed(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, id)
}

type fixture struct {
	repo  *repository.GormRepository
	cache *storage.FileStore
	obs   *recordingObserver
	hub   *notify.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := repository.Open(filepath.Join(dir, "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	cache, err := storage.NewFileStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	return &fixture{repo: repo, cache: cache, obs: &recordingObserver{}, hub: notify.NewHub()}
}

func (f *fixture) downloader(sources ...Source) *Downloader {
	return New(f.repo, f.cache, sources, Options{
		ConcurrentDownloadDelay: 20 * time.Millisecond,
		Hub:                     f.hub,
		Observer:                f.obs,
	})
}

func (f *fixture) status(t *testing.T, id string) repository.DownloadStatus {
	t.Helper()
	c, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c.DLStatus
}

func TestGetChunkFromSource(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("ledger")
	data := []byte("remote bytes")
	id := digest.Digest(data)
	src.put(id, data)
	d := f.downloader(src)

	got, err := d.GetChunk(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, repository.DLCompleted, f.status(t, id))

	// Second read is served from the cache.
	got, err = d.GetChunk(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int32(1), src.fetches.Load())

	// Bypassing the cache asks the source again.
	_, err = d.GetChunk(context.Background(), id, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.fetches.Load())
}

func TestGetChunkVerifiesEverySource(t *testing.T) {
	f := newFixture(t)
	data := []byte("the real thing")
	id := digest.Digest(data)

	liar := newMemSource("accelerator")
	liar.put(id, []byte("forged"))
	honest := newMemSource("ledger")
	honest.put(id, data)

	got, err := f.downloader(liar, honest).GetChunk(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, []string{"accelerator"}, f.obs.mismatches)
	assert.Equal(t, []string{"ledger"}, f.obs.downloads)

	cached, err := f.cache.Get(id)
	require.NoError(t, err)
	assert.Equal(t, data, cached)
}

func TestGetChunkSourcePriority(t *testing.T) {
	f := newFixture(t)
	data := []byte("both have it")
	id := digest.Digest(data)
	first, second := newMemSource("first"), newMemSource("second")
	first.put(id, data)
	second.put(id, data)

	_, err := f.downloader(first, second).GetChunk(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.fetches.Load())
	assert.Equal(t, int32(0), second.fetches.Load())
}

func TestGetChunkNotFound(t *testing.T) {
	f := newFixture(t)
	id := digest.Digest([]byte("nowhere"))
	liar := newMemSource("accelerator")
	liar.put(id, []byte("wrong"))

	_, err := f.downloader(liar, newMemSource("ledger")).GetChunk(context.Background(), id, true)
	require.ErrorIs(t, err, ErrChunkNotFound)
	assert.Equal(t, "download: chunk not found: "+id, err.Error())
	assert.Equal(t, repository.DLFailed, f.status(t, id))
	assert.Equal(t, []string{id}, f.obs.failures)

	has, err := f.cache.Has(id)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetChunkRetriesAfterFailure(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("ledger")
	data := []byte("late arrival")
	id := digest.Digest(data)
	d := f.downloader(src)

	_, err := d.GetChunk(context.Background(), id, true)
	require.ErrorIs(t, err, ErrChunkNotFound)

	src.put(id, data)
	got, err := d.GetChunk(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetChunkSingleFlight(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("ledger")
	src.delay = 50 * time.Millisecond
	data := []byte("contended")
	id := digest.Digest(data)
	src.put(id, data)
	d := f.downloader(src)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = d.GetChunk(context.Background(), id, true)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, data, results[i])
	}
	assert.Equal(t, int32(1), src.fetches.Load())
}

func TestGetChunkMissIsSharedWithWaiters(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("ledger")
	src.delay = 100 * time.Millisecond
	id := digest.Digest([]byte("nobody has this"))
	d := f.downloader(src)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = d.GetChunk(context.Background(), id, true)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrChunkNotFound)
	}
	assert.Equal(t, int32(1), src.fetches.Load())
	assert.Equal(t, repository.DLFailed, f.status(t, id))
	assert.Equal(t, 0, f.hub.Len())

	// A later request tries the sources again.
	_, err := d.GetChunk(context.Background(), id, true)
	assert.ErrorIs(t, err, ErrChunkNotFound)
	assert.Equal(t, int32(2), src.fetches.Load())
}

func TestGetChunkLeavesNoWaiters(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("ledger")
	d := f.downloader(src)

	var ids []string
	for i := 0; i < 50; i++ {
		data := []byte(fmt.Sprintf("chunk %d", i))
		id := digest.Digest(data)
		src.put(id, data)
		ids = append(ids, id)
	}
	for _, id := range ids {
		_, err := d.GetChunk(context.Background(), id, true)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, f.hub.Len())

	for _, id := range ids {
		_, err := d.GetChunk(context.Background(), id, true)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, f.hub.Len(), "cache hits must not leave hub entries")
	assert.Equal(t, int32(50), src.fetches.Load())
}

func TestGetChunkCancelledReleasesClaim(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("ledger")
	src.delay = time.Second
	id := digest.Digest([]byte("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.downloader(src).GetChunk(ctx, id, true)
	require.Error(t, err)
	assert.Equal(t, repository.DLFailed, f.status(t, id))
}

func TestGetChunkRejectsBadID(t *testing.T) {
	f := newFixture(t)
	_, err := f.downloader().GetChunk(context.Background(), "../etc/passwd", true)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestTenPartFileScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	backend := newMemSource("ledger")

	up := upload.New(f.repo, f.cache, backend, upload.Options{LoopInterval: 10 * time.Millisecond, Hub: f.hub})
	defer up.Close()

	chunks := make([][]byte, 10)
	var want strings.Builder
	for i := range chunks {
		chunks[i] = []byte(fmt.Sprintf("part-%d", i))
		want.Write(chunks[i])
	}
	ids, err := up.EnqueueChunksForUpload(ctx, chunks, "f1")
	require.NoError(t, err)

	maps, err := f.repo.FileChunks(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, maps, 10)
	for i, m := range maps {
		assert.Equal(t, i, m.Offset)
		assert.Equal(t, digest.Digest(chunks[i]), m.ChunkID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			c, err := f.repo.FindByID(ctx, id)
			if err != nil || c.ULStatus != repository.ULCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	// Drop the local copies so reassembly has to go to the backend.
	for _, id := range ids {
		require.NoError(t, f.cache.Delete(id))
	}

	got, err := f.downloader(backend).ReassembleFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "part-0part-1part-2part-3part-4part-5part-6part-7part-8part-9", string(got))
	assert.Equal(t, want.String(), string(got))
}

func TestGetFileMultiChunk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	backend := newMemSource("ledger")
	up := upload.New(f.repo, f.cache, backend, upload.Options{ChunkSize: 3, LoopInterval: 10 * time.Millisecond, Hub: f.hub})
	defer up.Close()

	data := []byte("content split across chunks")
	id, err := up.UploadFile(ctx, data)
	require.NoError(t, err)

	// A second node sharing only the backend.
	other := newFixture(t)
	d := other.downloader(backend)

	got, err := d.GetFile(ctx, id, EncodingRaw)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	hexed, err := d.GetFile(ctx, id, EncodingHex)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%x", data), string(hexed))
}

func TestGetDir(t *testing.T) {
	f := newFixture(t)
	backend := newMemSource("ledger")
	up := upload.New(f.repo, f.cache, backend, upload.Options{LoopInterval: 10 * time.Millisecond})
	defer up.Close()

	root := t.TempDir()
	id, err := up.UploadDir(context.Background(), root)
	require.NoError(t, err)

	dir, err := f.downloader(backend).GetDir(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, dir.Files)

	plain, err := up.UploadChunk(context.Background(), []byte("not a dir"))
	require.NoError(t, err)
	_, err = f.downloader(backend).GetDir(context.Background(), plain)
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestReassembleFileUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.downloader().ReassembleFile(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestEncode(t *testing.T) {
	tests := []struct {
		enc  Encoding
		in   []byte
		want string
		err  error
	}{
		{EncodingRaw, []byte("hi"), "hi", nil},
		{EncodingUTF8, []byte("héllo"), "héllo", nil},
		{EncodingUTF8, []byte{0xff, 0xfe}, "", ErrNotUTF8},
		{EncodingHex, []byte("hi"), "6869", nil},
		{EncodingBase64, []byte("hi"), "aGk=", nil},
		{"rot13", []byte("hi"), "", ErrUnknownEncoding},
	}
	for _, tt := range tests {
		t.Run(string(tt.enc), func(t *testing.T) {
			got, err := Encode(tt.in, tt.enc)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
