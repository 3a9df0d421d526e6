package models

import (
	"time"
)

// UsageRecord is one billable operation, used by the rolling-window rate
// gate. Rows are append-only.
type UsageRecord struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UsageAction constants
const (
	UsageActionTranscription     = "transcription"
	UsageActionContentGeneration = "content_generation"
)
