package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/podbrief/podbrief/pkg/models"
)

// Uploads

// CreateUpload creates a new audio upload record
func (r *Repository) CreateUpload(ctx context.Context, u *models.AudioUpload) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audio_uploads (id, user_id, filename, storage_key, size, duration, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		u.ID, u.UserID, u.Filename, u.StorageKey, u.Size, u.Duration, u.Status,
	).Scan(&u.CreatedAt, &u.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	return nil
}

// GetUpload retrieves an upload by ID
func (r *Repository) GetUpload(ctx context.Context, id string) (*models.AudioUpload, error) {
	var u models.AudioUpload

	query := `
		SELECT id, user_id, filename, storage_key, size, duration, status, created_at, updated_at
		FROM audio_uploads
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.UserID, &u.Filename, &u.StorageKey, &u.Size, &u.Duration,
		&u.Status, &u.CreatedAt, &u.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("upload %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}

	return &u, nil
}

// ListUploads retrieves a user's uploads with pagination, newest first.
// Soft-deleted rows are excluded.
func (r *Repository) ListUploads(ctx context.Context, userID string, limit, offset int) ([]*models.AudioUpload, error) {
	query := `
		SELECT id, user_id, filename, storage_key, size, duration, status, created_at, updated_at
		FROM audio_uploads
		WHERE user_id = $1 AND status <> 'deleted'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.AudioUpload
	for rows.Next() {
		var u models.AudioUpload
		err := rows.Scan(
			&u.ID, &u.UserID, &u.Filename, &u.StorageKey, &u.Size, &u.Duration,
			&u.Status, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, &u)
	}

	return uploads, nil
}

// UpdateUploadStatus advances an upload's status
func (r *Repository) UpdateUploadStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE audio_uploads
		SET status = $2, updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}

	return nil
}

// MarkUploadDeleted soft-deletes an upload row. The storage object is removed
// separately; the two operations are idempotent and deliberately uncoupled.
func (r *Repository) MarkUploadDeleted(ctx context.Context, id string) error {
	return r.UpdateUploadStatus(ctx, id, models.UploadStatusDeleted)
}

// Jobs

// CreateJob creates a new processing job record
func (r *Repository) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	query := `
		INSERT INTO processing_jobs (id, upload_id, user_id, job_type, status, progress, result, error_msg, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		job.ID, job.UploadID, job.UserID, job.JobType, job.Status, job.Progress,
		job.Result, job.ErrorMsg, job.StartedAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (*models.ProcessingJob, error) {
	var job models.ProcessingJob

	query := `
		SELECT id, upload_id, user_id, job_type, status, progress, result, error_msg,
		       started_at, completed_at, created_at, updated_at
		FROM processing_jobs
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UploadID, &job.UserID, &job.JobType, &job.Status, &job.Progress,
		&job.Result, &job.ErrorMsg, &job.StartedAt, &job.CompletedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetJobsByUploadID retrieves all jobs for an upload
func (r *Repository) GetJobsByUploadID(ctx context.Context, uploadID string) ([]*models.ProcessingJob, error) {
	query := `
		SELECT id, upload_id, user_id, job_type, status, progress, result, error_msg,
		       started_at, completed_at, created_at, updated_at
		FROM processing_jobs
		WHERE upload_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ProcessingJob
	for rows.Next() {
		var job models.ProcessingJob
		err := rows.Scan(
			&job.ID, &job.UploadID, &job.UserID, &job.JobType, &job.Status, &job.Progress,
			&job.Result, &job.ErrorMsg, &job.StartedAt, &job.CompletedAt,
			&job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, nil
}

// CompleteJob marks a job completed with progress 100 and the raw provider
// result attached. Progress 100 and the completed status always move
// together.
func (r *Repository) CompleteJob(ctx context.Context, id string, result models.Payload) error {
	query := `
		UPDATE processing_jobs
		SET status = 'completed', progress = 100, result = $2, completed_at = now(), updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, result)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

// FailJob marks a job failed with the error text attached.
func (r *Repository) FailJob(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE processing_jobs
		SET status = 'failed', error_msg = $2, completed_at = now(), updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	return nil
}

// CancelJob cancels a job that has not finished yet. It does not abort an
// in-flight provider call; the row transition is the whole effect.
func (r *Repository) CancelJob(ctx context.Context, id string) error {
	query := `
		UPDATE processing_jobs
		SET status = 'cancelled', completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'running')
	`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrCannotCancel
	}

	return nil
}

// UpdateJobProgress sets intermediate progress on a running job.
func (r *Repository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	query := `
		UPDATE processing_jobs
		SET progress = $2, updated_at = now()
		WHERE id = $1 AND status = 'running'
	`

	_, err := r.db.Pool.Exec(ctx, query, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	return nil
}

// Generated content

// CreateContent appends a generated content row
func (r *Repository) CreateContent(ctx context.Context, c *models.GeneratedContent) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `
		INSERT INTO generated_content (id, upload_id, job_id, content_type, content, word_count, char_count, quality_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		c.ID, c.UploadID, c.JobID, c.ContentType, c.Content,
		c.WordCount, c.CharCount, c.QualityScore,
	).Scan(&c.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create content: %w", err)
	}

	return nil
}

// GetContentByUploadID retrieves all generated content for an upload
func (r *Repository) GetContentByUploadID(ctx context.Context, uploadID string) ([]*models.GeneratedContent, error) {
	query := `
		SELECT id, upload_id, job_id, content_type, content, word_count, char_count, quality_score, created_at
		FROM generated_content
		WHERE upload_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	defer rows.Close()

	var contents []*models.GeneratedContent
	for rows.Next() {
		var c models.GeneratedContent
		err := rows.Scan(
			&c.ID, &c.UploadID, &c.JobID, &c.ContentType, &c.Content,
			&c.WordCount, &c.CharCount, &c.QualityScore, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		contents = append(contents, &c)
	}

	return contents, nil
}

// Shared results

// CreateSharedResult persists a public snapshot of an upload's content
func (r *Repository) CreateSharedResult(ctx context.Context, s *models.SharedResult) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	query := `
		INSERT INTO shared_results (id, share_id, upload_id, user_id, title, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		s.ID, s.ShareID, s.UploadID, s.UserID, s.Title, s.Content,
	).Scan(&s.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create shared result: %w", err)
	}

	return nil
}

// GetSharedResult retrieves a snapshot by its public share identifier
func (r *Repository) GetSharedResult(ctx context.Context, shareID string) (*models.SharedResult, error) {
	var s models.SharedResult

	query := `
		SELECT id, share_id, upload_id, user_id, title, content, created_at
		FROM shared_results
		WHERE share_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, shareID).Scan(
		&s.ID, &s.ShareID, &s.UploadID, &s.UserID, &s.Title, &s.Content, &s.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("shared result %s: %w", shareID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shared result: %w", err)
	}

	return &s, nil
}
