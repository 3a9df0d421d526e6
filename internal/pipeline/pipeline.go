// Package pipeline orchestrates provider calls against uploaded audio. Each
// provider invocation gets a durable ProcessingJob row: created when the call
// starts and finalized exactly once, so the row is the audit trail even when
// the HTTP response is lost.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/podbrief/podbrief/internal/limits"
	"github.com/podbrief/podbrief/internal/metrics"
	"github.com/podbrief/podbrief/internal/notify"
	"github.com/podbrief/podbrief/internal/provider"
	"github.com/podbrief/podbrief/pkg/models"
	"github.com/rs/zerolog/log"
)

// Gate outcomes and upstream failures, distinguishable by errors.Is so the
// HTTP layer can map them to 429/402/500.
var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrQuotaExceeded = errors.New("monthly quota exceeded")
	ErrNetwork       = errors.New("upstream fetch failed")
)

// ContentGenerationError reports a provider response that did not parse into
// the expected structured shape.
type ContentGenerationError struct {
	Reason string
}

func (e *ContentGenerationError) Error() string {
	return "content generation failed: " + e.Reason
}

// transcriptQualityScore is attached to every transcript content row.
const transcriptQualityScore = 0.95

// Store is the persistence surface the orchestrator writes through.
type Store interface {
	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	CompleteJob(ctx context.Context, id string, result models.Payload) error
	FailJob(ctx context.Context, id, errMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	CreateContent(ctx context.Context, c *models.GeneratedContent) error
	RecordUsage(ctx context.Context, rec *models.UsageRecord) error
	IncrementUsage(ctx context.Context, userID string) error
	UpdateUploadStatus(ctx context.Context, id, status string) error
}

// Gate decides whether a billable operation may proceed.
type Gate interface {
	Check(ctx context.Context, userID, action string) (limits.Decision, string, error)
}

// Transcriber calls the speech-to-text provider.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (*provider.Transcription, error)
}

// Generator calls the text-generation provider.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Orchestrator runs transcription and content-generation pipelines.
type Orchestrator struct {
	store       Store
	gate        Gate
	transcriber Transcriber
	generator   Generator
	events      notify.Publisher
	httpClient  *http.Client
}

// New creates an orchestrator. events may be nil when no change bus is
// wired (tests, the legacy endpoint).
func New(store Store, gate Gate, transcriber Transcriber, generator Generator, events notify.Publisher) *Orchestrator {
	return &Orchestrator{
		store:       store,
		gate:        gate,
		transcriber: transcriber,
		generator:   generator,
		events:      events,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

// TranscribeRequest carries one transcription invocation.
type TranscribeRequest struct {
	UserID   string
	UploadID string
	AudioURL string
	Language string
	Priority string
}

// TranscribeResult is the caller-facing outcome of a transcription.
type TranscribeResult struct {
	JobID      string
	Transcript string
	Language   string
	Duration   float64
}

// Transcribe gates, creates a running job, fetches the audio, calls the
// provider, and finalizes the job. Gate rejections happen before any row is
// created; failures after job creation are captured on the job and re-raised.
func (o *Orchestrator) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	if req.Language == "" {
		req.Language = "en"
	}

	decision, tier, err := o.gate.Check(ctx, req.UserID, models.UsageActionTranscription)
	if err != nil {
		return nil, err
	}
	switch decision {
	case limits.DecisionRateLimited:
		metrics.RecordGateRejection("rate_limited", tier)
		return nil, fmt.Errorf("tier %s: %w", tier, ErrRateLimited)
	case limits.DecisionQuotaExceeded:
		metrics.RecordGateRejection("quota_exceeded", tier)
		return nil, fmt.Errorf("tier %s: %w", tier, ErrQuotaExceeded)
	}

	return o.runTranscription(ctx, req, models.JobTypeTranscription)
}

func (o *Orchestrator) runTranscription(ctx context.Context, req TranscribeRequest, jobType string) (*TranscribeResult, error) {
	now := time.Now()
	job := &models.ProcessingJob{
		UploadID:  req.UploadID,
		UserID:    req.UserID,
		JobType:   jobType,
		Status:    models.JobStatusRunning,
		StartedAt: &now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	metrics.RecordJobCreated(jobType)

	if err := o.store.UpdateUploadStatus(ctx, req.UploadID, models.UploadStatusProcessing); err != nil {
		log.Warn().Err(err).Str("upload_id", req.UploadID).Msg("Failed to mark upload processing")
	}

	audio, err := o.fetchAudio(ctx, req.AudioURL)
	if err != nil {
		o.failJob(ctx, job, req.UploadID, err)
		return nil, err
	}

	result, err := o.transcriber.Transcribe(ctx, audio, filenameFromURL(req.AudioURL), req.Language)
	if err != nil {
		o.failJob(ctx, job, req.UploadID, err)
		return nil, fmt.Errorf("transcription provider: %w", err)
	}

	payload := models.Payload{
		"text":     result.Text,
		"language": result.Language,
		"duration": result.Duration,
		"segments": result.Segments,
	}
	if err := o.store.CompleteJob(ctx, job.ID, payload); err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}
	metrics.RecordJobCompleted(jobType, models.JobStatusCompleted, time.Since(now).Seconds())

	content := &models.GeneratedContent{
		UploadID:     req.UploadID,
		JobID:        job.ID,
		ContentType:  models.ContentTypeTranscript,
		Content:      models.Payload{"text": result.Text},
		WordCount:    wordCount(result.Text),
		CharCount:    charCount(result.Text),
		QualityScore: transcriptQualityScore,
	}
	if err := o.store.CreateContent(ctx, content); err != nil {
		return nil, fmt.Errorf("failed to persist transcript: %w", err)
	}

	if err := o.store.RecordUsage(ctx, &models.UsageRecord{
		UserID: req.UserID,
		Action: models.UsageActionTranscription,
	}); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	if err := o.store.IncrementUsage(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}
	o.publishProfileChange(ctx, req.UserID)

	if err := o.store.UpdateUploadStatus(ctx, req.UploadID, models.UploadStatusCompleted); err != nil {
		log.Warn().Err(err).Str("upload_id", req.UploadID).Msg("Failed to mark upload completed")
	}

	log.Info().
		Str("job_id", job.ID).
		Str("upload_id", req.UploadID).
		Str("user_id", req.UserID).
		Int("words", content.WordCount).
		Msg("Transcription completed")

	return &TranscribeResult{
		JobID:      job.ID,
		Transcript: result.Text,
		Language:   result.Language,
		Duration:   result.Duration,
	}, nil
}

// LegacyTranscribe is the simple variant: fetch and transcribe with no
// gates, no job row, and no persistence.
func (o *Orchestrator) LegacyTranscribe(ctx context.Context, audioURL string) (string, error) {
	audio, err := o.fetchAudio(ctx, audioURL)
	if err != nil {
		return "", err
	}

	result, err := o.transcriber.Transcribe(ctx, audio, filenameFromURL(audioURL), "en")
	if err != nil {
		return "", fmt.Errorf("transcription provider: %w", err)
	}

	return result.Text, nil
}

func (o *Orchestrator) fetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: audio fetch returned %d", ErrNetwork, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return audio, nil
}

func (o *Orchestrator) failJob(ctx context.Context, job *models.ProcessingJob, uploadID string, cause error) {
	if err := o.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
	}

	duration := 0.0
	if job.StartedAt != nil {
		duration = time.Since(*job.StartedAt).Seconds()
	}
	metrics.RecordJobCompleted(job.JobType, models.JobStatusFailed, duration)

	if err := o.store.UpdateUploadStatus(ctx, uploadID, models.UploadStatusFailed); err != nil {
		log.Warn().Err(err).Str("upload_id", uploadID).Msg("Failed to mark upload failed")
	}
}

func (o *Orchestrator) publishProfileChange(ctx context.Context, userID string) {
	if o.events == nil {
		return
	}
	err := o.events.Publish(ctx, notify.Event{
		Table:  notify.TableProfiles,
		UserID: userID,
		Action: "update",
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to publish profile change")
	}
}

func filenameFromURL(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "audio"
	}
	return path.Base(u.Path)
}
