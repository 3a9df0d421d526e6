package models

import (
	"time"
)

// SharedResult is a denormalized public snapshot of one upload's generated
// content. ShareID is a random identifier distinct from the internal row id
// and is the only key exposed to unauthenticated viewers.
type SharedResult struct {
	ID        string    `json:"id" db:"id"`
	ShareID   string    `json:"share_id" db:"share_id"`
	UploadID  string    `json:"upload_id" db:"upload_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Content   Payload   `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
