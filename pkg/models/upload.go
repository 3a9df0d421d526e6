package models

import (
	"time"
)

// AudioUpload represents one uploaded audio file. The storage object and the
// row are deleted independently; "deleted" is a soft marker on the row.
type AudioUpload struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	Filename   string     `json:"filename" db:"filename"`
	StorageKey string     `json:"storage_key" db:"storage_key"`
	Size       int64      `json:"size" db:"size"`
	Duration   *float64   `json:"duration,omitempty" db:"duration"`
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// UploadStatus constants
const (
	UploadStatusUploading  = "uploading"
	UploadStatusUploaded   = "uploaded"
	UploadStatusProcessing = "processing"
	UploadStatusCompleted  = "completed"
	UploadStatusFailed     = "failed"
	UploadStatusDeleted    = "deleted"
)
