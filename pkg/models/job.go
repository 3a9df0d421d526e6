package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ProcessingJob is the durable record of one provider invocation. It is
// created when the call starts and updated exactly once at completion.
type ProcessingJob struct {
	ID          string     `json:"id" db:"id"`
	UploadID    string     `json:"upload_id" db:"upload_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	JobType     string     `json:"job_type" db:"job_type"`
	Status      string     `json:"status" db:"status"`
	Progress    int        `json:"progress" db:"progress"`
	Result      Payload    `json:"result,omitempty" db:"result"`
	ErrorMsg    string     `json:"error_msg,omitempty" db:"error_msg"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Payload holds an opaque JSON document stored in a jsonb column.
type Payload map[string]interface{}

// Value implements driver.Valuer for database storage
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for database retrieval
func (p *Payload) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// JobType constants
const (
	JobTypeTranscription     = "transcription"
	JobTypeContentGeneration = "content_generation"
	JobTypeFullPipeline      = "full_pipeline"
)

// JobStatus constants
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)
