package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// batchSize bounds the number of rows or bound parameters per statement.
const batchSize = 500

// GormRepository implements Repository on SQLite through gorm.
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

// Open opens (creating if necessary) the SQLite database at path and
// migrates the schema.
func Open(path string) (*GormRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrDatabase)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrDatabase, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Chunk{}, &FileMap{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrDatabase, err)
	}
	return &GormRepository{db: db}, nil
}

// Close closes the database.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return sqlDB.Close()
}

func dbErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDatabase, err)
}

// FindByID implements Repository.
func (r *GormRepository) FindByID(ctx context.Context, id string) (*Chunk, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var c Chunk
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return &c, nil
}

// CreateOrGet implements Repository.
func (r *GormRepository) CreateOrGet(ctx context.Context, id string) (*Chunk, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	row := &Chunk{ID: id, ULStatus: ULNotStarted, DLStatus: DLNotStarted}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	if err != nil {
		return nil, dbErr(err)
	}
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// Save implements Repository.
func (r *GormRepository) Save(ctx context.Context, c *Chunk) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	return dbErr(r.db.WithContext(ctx).Save(c).Error)
}

// BulkCreate implements Repository.
func (r *GormRepository) BulkCreate(ctx context.Context, chunks []*Chunk, ignoreDuplicates bool) error {
	if len(chunks) == 0 {
		return nil
	}
	tx := r.db.WithContext(ctx)
	if ignoreDuplicates {
		tx = tx.Clauses(clause.OnConflict{DoNothing: true})
	}
	return dbErr(tx.CreateInBatches(chunks, batchSize).Error)
}

// CompareAndSetULStatus implements Repository.
func (r *GormRepository) CompareAndSetULStatus(ctx context.Context, id string, from []UploadStatus, to UploadStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Chunk{}).
		Where("id = ? AND ul_status IN ?", id, from).
		Update("ul_status", to)
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ResetULStatus implements Repository.
func (r *GormRepository) ResetULStatus(ctx context.Context, ids []string, from []UploadStatus, to UploadStatus) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		res := r.db.WithContext(ctx).Model(&Chunk{}).
			Where("id IN ? AND ul_status IN ?", ids[start:end], from).
			Update("ul_status", to)
		if res.Error != nil {
			return total, dbErr(res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// CompleteUpload implements Repository.
func (r *GormRepository) CompleteUpload(ctx context.Context, id, txID string) error {
	res := r.db.WithContext(ctx).Model(&Chunk{}).
		Where("id = ? AND ul_status = ?", id, ULInProgress).
		Updates(map[string]any{"ul_status": ULCompleted, "tx_id": txID})
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s not in progress", ErrNotFound, id)
	}
	return nil
}

// FailUpload implements Repository.
func (r *GormRepository) FailUpload(ctx context.Context, id string, validation bool) error {
	col := "retry_count"
	if validation {
		col = "validate_retry_count"
	}
	res := r.db.WithContext(ctx).Model(&Chunk{}).
		Where("id = ? AND ul_status = ?", id, ULInProgress).
		Updates(map[string]any{"ul_status": ULFailed, col: gorm.Expr(col + " + 1")})
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s not in progress", ErrNotFound, id)
	}
	return nil
}

// ListByULStatus implements Repository.
func (r *GormRepository) ListByULStatus(ctx context.Context, status UploadStatus, limit int) ([]Chunk, error) {
	var rows []Chunk
	q := r.db.WithContext(ctx).Where("ul_status = ?", status).Order("updated_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, dbErr(err)
	}
	return rows, nil
}

// CompareAndSetDLStatus implements Repository.
func (r *GormRepository) CompareAndSetDLStatus(ctx context.Context, id string, from []DownloadStatus, to DownloadStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Chunk{}).
		Where("id = ? AND dl_status IN ?", id, from).
		Update("dl_status", to)
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CompleteDownload implements Repository.
func (r *GormRepository) CompleteDownload(ctx context.Context, id string, size int64) error {
	res := r.db.WithContext(ctx).Model(&Chunk{}).
		Where("id = ?", id).
		Updates(map[string]any{"dl_status": DLCompleted, "size": size})
	return dbErr(res.Error)
}

// SetDLStatus implements Repository.
func (r *GormRepository) SetDLStatus(ctx context.Context, id string, to DownloadStatus) error {
	return dbErr(r.db.WithContext(ctx).Model(&Chunk{}).Where("id = ?", id).Update("dl_status", to).Error)
}

// CreateFileMaps implements Repository.
func (r *GormRepository) CreateFileMaps(ctx context.Context, maps []FileMap) error {
	if len(maps) == 0 {
		return nil
	}
	return dbErr(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(maps, batchSize).Error)
}

// FileChunks implements Repository.
func (r *GormRepository) FileChunks(ctx context.Context, fileID string) ([]FileMap, error) {
	var rows []FileMap
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Order("chunk_offset").Find(&rows).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return rows, nil
}

// RecoverInProgress implements Repository.
func (r *GormRepository) RecoverInProgress(ctx context.Context) (int64, int64, error) {
	ul := r.db.WithContext(ctx).Model(&Chunk{}).
		Where("ul_status = ?", ULInProgress).
		Update("ul_status", ULEnqueued)
	if ul.Error != nil {
		return 0, 0, dbErr(ul.Error)
	}
	dl := r.db.WithContext(ctx).Model(&Chunk{}).
		Where("dl_status = ?", DLInProgress).
		Update("dl_status", DLNotStarted)
	if dl.Error != nil {
		return ul.RowsAffected, 0, dbErr(dl.Error)
	}
	return ul.RowsAffected, dl.RowsAffected, nil
}
