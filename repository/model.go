// Package repository persists chunk metadata: upload and download
// status per chunk and the mapping of files onto ordered chunks.
package repository

import "time"

// UploadStatus is the state of a chunk in the upload pipeline.
type UploadStatus string

const (
	ULNotStarted UploadStatus = "NOT_STARTED"
	ULEnqueued   UploadStatus = "ENQUEUED"
	ULInProgress UploadStatus = "IN_PROGRESS"
	ULCompleted  UploadStatus = "COMPLETED"
	ULFailed     UploadStatus = "FAILED"
)

// DownloadStatus is the state of a chunk in the download pipeline.
type DownloadStatus string

const (
	DLNotStarted DownloadStatus = "NOT_STARTED"
	DLInProgress DownloadStatus = "IN_PROGRESS"
	DLCompleted  DownloadStatus = "COMPLETED"
	DLFailed     DownloadStatus = "FAILED"
)

// Chunk is the metadata row for one content-addressed chunk.
// ID is the hex SHA-256 of the chunk bytes.
type Chunk struct {
	ID                 string         `gorm:"primaryKey;size:64"`
	Size               int64          `gorm:"not null;default:0"`
	ULStatus           UploadStatus   `gorm:"column:ul_status;size:16;index;not null;default:NOT_STARTED"`
	DLStatus           DownloadStatus `gorm:"column:dl_status;size:16;not null;default:NOT_STARTED"`
	RetryCount         int            `gorm:"not null;default:0"`
	ValidateRetryCount int            `gorm:"not null;default:0"`
	TxID               string         `gorm:"column:tx_id;size:64"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FileMap places a chunk at a position within a file. Offset is the
// 0-based index of the chunk in reassembly order.
type FileMap struct {
	FileID  string `gorm:"primaryKey;size:64"`
	Offset  int    `gorm:"column:chunk_offset;primaryKey;autoIncrement:false"`
	ChunkID string `gorm:"size:64;index;not null"`
}

// TableName pins the FileMap table name.
func (FileMap) TableName() string { return "file_maps" }
