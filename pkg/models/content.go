package models

import (
	"time"
)

// GeneratedContent is a persisted artifact produced by a provider call.
// Rows are append-only.
type GeneratedContent struct {
	ID           string    `json:"id" db:"id"`
	UploadID     string    `json:"upload_id" db:"upload_id"`
	JobID        string    `json:"job_id" db:"job_id"`
	ContentType  string    `json:"content_type" db:"content_type"`
	Content      Payload   `json:"content" db:"content"`
	WordCount    int       `json:"word_count" db:"word_count"`
	CharCount    int       `json:"char_count" db:"char_count"`
	QualityScore float64   `json:"quality_score" db:"quality_score"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ContentType constants
const (
	ContentTypeTranscript     = "transcript"
	ContentTypeShowNotes      = "show_notes"
	ContentTypeTweets         = "tweets"
	ContentTypeLinkedInPosts  = "linkedin_posts"
	ContentTypeInstagramHooks = "instagram_hooks"
)
