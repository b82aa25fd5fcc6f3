package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/chunkd/chunkinfo"
	"github.com/bitfsorg/chunkd/repository"
	"github.com/bitfsorg/chunkd/storage"
)

// UploadFile splits data into chunks, uploads them and returns the
// content id of the file. A single-chunk file is addressed by its chunk
// id; a larger one by the id of its chunk-info blob. The chunk order is
// also recorded as file map rows under the content id.
func (u *Uploader) UploadFile(ctx context.Context, data []byte) (string, error) {
	chunks, err := storage.SplitIntoChunks(data, u.opts.ChunkSize)
	if err != nil {
		return "", err
	}

	ids := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.FileWorkers)
	for i, chunk := range chunks {
		g.Go(func() error {
			id, err := u.UploadChunk(gctx, chunk)
			ids[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	contentID := ids[0]
	if len(ids) > 1 {
		info, err := chunkinfo.NewFile(ids, int64(len(data)))
		if err != nil {
			return "", err
		}
		blob, err := info.Encode()
		if err != nil {
			return "", err
		}
		if contentID, err = u.UploadChunk(ctx, blob); err != nil {
			return "", err
		}
	}

	maps := make([]repository.FileMap, len(ids))
	for i, id := range ids {
		maps[i] = repository.FileMap{FileID: contentID, Offset: i, ChunkID: id}
	}
	if err := u.repo.CreateFileMaps(ctx, maps); err != nil {
		return "", err
	}
	u.log.WithFields(logrus.Fields{"file": contentID, "chunks": len(ids), "bytes": len(data)}).Info("file uploaded")
	return contentID, nil
}

// UploadDir uploads every regular file and subdirectory of path and
// returns the content id of the directory blob. Symlinks and special
// files are skipped.
func (u *Uploader) UploadDir(ctx context.Context, path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	dir := &chunkinfo.Dir{Type: chunkinfo.TypeDir, Files: make([]chunkinfo.Entry, 0, len(entries))}
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		switch {
		case e.Type().IsRegular():
			data, err := os.ReadFile(full)
			if err != nil {
				return "", fmt.Errorf("upload: %w", err)
			}
			id, err := u.UploadFile(ctx, data)
			if err != nil {
				return "", fmt.Errorf("upload %s: %w", full, err)
			}
			dir.Files = append(dir.Files, chunkinfo.Entry{Type: chunkinfo.TypeFile, Name: e.Name(), Size: int64(len(data)), ID: id})
		case e.IsDir():
			id, err := u.UploadDir(ctx, full)
			if err != nil {
				return "", err
			}
			dir.Files = append(dir.Files, chunkinfo.Entry{Type: chunkinfo.TypeDir, Name: e.Name(), ID: id})
		default:
			u.log.WithField("path", full).Debug("skipping non-regular file")
		}
	}

	blob, err := dir.Encode()
	if err != nil {
		return "", err
	}
	return u.UploadChunk(ctx, blob)
}

// UploadPath uploads a file or a directory tree.
func (u *Uploader) UploadPath(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	switch {
	case info.IsDir():
		return u.UploadDir(ctx, path)
	case info.Mode().IsRegular():
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("upload: %w", err)
		}
		return u.UploadFile(ctx, data)
	default:
		return "", fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
}
