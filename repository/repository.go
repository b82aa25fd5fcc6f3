package repository

import "context"

// Repository is the metadata store shared by the upload and download
// pipelines. Status transitions go through the CompareAndSet methods,
// which are atomic with respect to concurrent callers: exactly one
// racer observes true for a given transition.
type Repository interface {
	// FindByID returns the chunk row, or (nil, nil) if absent.
	FindByID(ctx context.Context, id string) (*Chunk, error)

	// CreateOrGet returns the row for id, inserting a NOT_STARTED row if absent.
	CreateOrGet(ctx context.Context, id string) (*Chunk, error)

	// Save writes all columns of c.
	Save(ctx context.Context, c *Chunk) error

	// BulkCreate inserts rows. With ignoreDuplicates, rows whose id already
	// exists are skipped instead of failing the batch.
	BulkCreate(ctx context.Context, chunks []*Chunk, ignoreDuplicates bool) error

	// CompareAndSetULStatus moves id to `to` only if its upload status is in from.
	CompareAndSetULStatus(ctx context.Context, id string, from []UploadStatus, to UploadStatus) (bool, error)

	// ResetULStatus moves every listed id whose upload status is in from to `to`.
	ResetULStatus(ctx context.Context, ids []string, from []UploadStatus, to UploadStatus) (int64, error)

	// CompleteUpload marks an IN_PROGRESS upload COMPLETED and records its ledger tx.
	CompleteUpload(ctx context.Context, id, txID string) error

	// FailUpload marks an IN_PROGRESS upload FAILED and charges one retry to
	// the validate budget (validation=true) or the send budget.
	FailUpload(ctx context.Context, id string, validation bool) error

	// ListByULStatus returns up to limit rows with the given upload status,
	// oldest first.
	ListByULStatus(ctx context.Context, status UploadStatus, limit int) ([]Chunk, error)

	// CompareAndSetDLStatus moves id to `to` only if its download status is in from.
	CompareAndSetDLStatus(ctx context.Context, id string, from []DownloadStatus, to DownloadStatus) (bool, error)

	// CompleteDownload marks id COMPLETED and records its size.
	CompleteDownload(ctx context.Context, id string, size int64) error

	// SetDLStatus unconditionally sets the download status of id.
	SetDLStatus(ctx context.Context, id string, to DownloadStatus) error

	// CreateFileMaps inserts file/chunk placements, ignoring rows that exist.
	CreateFileMaps(ctx context.Context, maps []FileMap) error

	// FileChunks returns the placements of fileID ordered by offset.
	FileChunks(ctx context.Context, fileID string) ([]FileMap, error)

	// RecoverInProgress returns rows left IN_PROGRESS by a previous process
	// to a startable state: uploads to ENQUEUED, downloads to NOT_STARTED.
	RecoverInProgress(ctx context.Context) (uploads, downloads int64, err error)

	// Close releases the underlying database.
	Close() error
}
