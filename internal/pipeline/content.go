package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/podbrief/podbrief/internal/limits"
	"github.com/podbrief/podbrief/internal/metrics"
	"github.com/podbrief/podbrief/pkg/models"
	"github.com/rs/zerolog/log"
)

// ContentBundle is the structured output of one generation pass over a
// transcript.
type ContentBundle struct {
	ShowNotes      string   `json:"showNotes"`
	Tweets         []string `json:"tweets"`
	LinkedInPosts  []string `json:"linkedinPosts"`
	InstagramHooks []string `json:"instagramHooks"`
}

// GenerateContent turns a transcript into the four content formats in a
// single provider call. The response must parse into a ContentBundle with
// show notes and at least one tweet; anything else is a
// ContentGenerationError and nothing is persisted by callers.
func (o *Orchestrator) GenerateContent(ctx context.Context, transcript string) (*ContentBundle, error) {
	raw, err := o.generator.Complete(ctx, contentPrompt(transcript))
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	bundle, err := parseContentBundle(raw)
	if err != nil {
		return nil, err
	}

	return bundle, nil
}

// GenerateForUpload runs content generation under a content_generation job
// and persists one row per content type.
func (o *Orchestrator) GenerateForUpload(ctx context.Context, userID, uploadID, transcript string) (*ContentBundle, error) {
	now := time.Now()
	job := &models.ProcessingJob{
		UploadID:  uploadID,
		UserID:    userID,
		JobType:   models.JobTypeContentGeneration,
		Status:    models.JobStatusRunning,
		StartedAt: &now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	metrics.RecordJobCreated(models.JobTypeContentGeneration)

	bundle, err := o.GenerateContent(ctx, transcript)
	if err != nil {
		o.failJob(ctx, job, uploadID, err)
		return nil, err
	}

	if err := o.persistBundle(ctx, uploadID, job.ID, bundle); err != nil {
		o.failJob(ctx, job, uploadID, err)
		return nil, err
	}

	summary := models.Payload{
		"tweets":          len(bundle.Tweets),
		"linkedin_posts":  len(bundle.LinkedInPosts),
		"instagram_hooks": len(bundle.InstagramHooks),
	}
	if err := o.store.CompleteJob(ctx, job.ID, summary); err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}
	metrics.RecordJobCompleted(models.JobTypeContentGeneration, models.JobStatusCompleted, time.Since(now).Seconds())

	log.Info().
		Str("job_id", job.ID).
		Str("upload_id", uploadID).
		Int("tweets", len(bundle.Tweets)).
		Msg("Content generation completed")

	return bundle, nil
}

// RunPipeline transcribes and then generates content in one pass, tracked
// under a full_pipeline job whose progress moves 0 -> 50 -> 100.
func (o *Orchestrator) RunPipeline(ctx context.Context, req TranscribeRequest) (*TranscribeResult, *ContentBundle, error) {
	decision, tier, err := o.gate.Check(ctx, req.UserID, models.UsageActionTranscription)
	if err != nil {
		return nil, nil, err
	}
	switch decision {
	case limits.DecisionRateLimited:
		metrics.RecordGateRejection("rate_limited", tier)
		return nil, nil, fmt.Errorf("tier %s: %w", tier, ErrRateLimited)
	case limits.DecisionQuotaExceeded:
		metrics.RecordGateRejection("quota_exceeded", tier)
		return nil, nil, fmt.Errorf("tier %s: %w", tier, ErrQuotaExceeded)
	}

	now := time.Now()
	pipeJob := &models.ProcessingJob{
		UploadID:  req.UploadID,
		UserID:    req.UserID,
		JobType:   models.JobTypeFullPipeline,
		Status:    models.JobStatusRunning,
		StartedAt: &now,
	}
	if err := o.store.CreateJob(ctx, pipeJob); err != nil {
		return nil, nil, fmt.Errorf("failed to create job: %w", err)
	}
	metrics.RecordJobCreated(models.JobTypeFullPipeline)

	tres, err := o.runTranscription(ctx, req, models.JobTypeTranscription)
	if err != nil {
		o.failJob(ctx, pipeJob, req.UploadID, err)
		return nil, nil, err
	}

	if err := o.store.UpdateJobProgress(ctx, pipeJob.ID, 50); err != nil {
		log.Warn().Err(err).Str("job_id", pipeJob.ID).Msg("Failed to update pipeline progress")
	}

	bundle, err := o.GenerateForUpload(ctx, req.UserID, req.UploadID, tres.Transcript)
	if err != nil {
		o.failJob(ctx, pipeJob, req.UploadID, err)
		return tres, nil, err
	}

	summary := models.Payload{
		"transcription_job_id": tres.JobID,
		"duration":             tres.Duration,
		"tweets":               len(bundle.Tweets),
	}
	if err := o.store.CompleteJob(ctx, pipeJob.ID, summary); err != nil {
		return tres, bundle, fmt.Errorf("failed to complete job: %w", err)
	}
	metrics.RecordJobCompleted(models.JobTypeFullPipeline, models.JobStatusCompleted, time.Since(now).Seconds())

	return tres, bundle, nil
}

func (o *Orchestrator) persistBundle(ctx context.Context, uploadID, jobID string, bundle *ContentBundle) error {
	rows := []*models.GeneratedContent{
		{
			ContentType: models.ContentTypeShowNotes,
			Content:     models.Payload{"text": bundle.ShowNotes},
			WordCount:   wordCount(bundle.ShowNotes),
			CharCount:   charCount(bundle.ShowNotes),
		},
		{
			ContentType: models.ContentTypeTweets,
			Content:     models.Payload{"items": bundle.Tweets},
			WordCount:   wordCountAll(bundle.Tweets),
			CharCount:   charCountAll(bundle.Tweets),
		},
		{
			ContentType: models.ContentTypeLinkedInPosts,
			Content:     models.Payload{"items": bundle.LinkedInPosts},
			WordCount:   wordCountAll(bundle.LinkedInPosts),
			CharCount:   charCountAll(bundle.LinkedInPosts),
		},
		{
			ContentType: models.ContentTypeInstagramHooks,
			Content:     models.Payload{"items": bundle.InstagramHooks},
			WordCount:   wordCountAll(bundle.InstagramHooks),
			CharCount:   charCountAll(bundle.InstagramHooks),
		},
	}

	for _, row := range rows {
		row.UploadID = uploadID
		row.JobID = jobID
		if err := o.store.CreateContent(ctx, row); err != nil {
			return fmt.Errorf("failed to persist %s: %w", row.ContentType, err)
		}
	}

	return nil
}

func contentPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Create social media content from this podcast transcript.\n\n")
	b.WriteString("Return a JSON object with exactly these keys:\n")
	b.WriteString(`  "showNotes": markdown show notes with a summary and key takeaways` + "\n")
	b.WriteString(`  "tweets": an array of 5 tweets, each under 280 characters` + "\n")
	b.WriteString(`  "linkedinPosts": an array of 3 professional LinkedIn posts` + "\n")
	b.WriteString(`  "instagramHooks": an array of 10 short attention-grabbing hooks` + "\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	return b.String()
}

// parseContentBundle is strict about shape: provider chatter around the JSON
// is tolerated, a malformed or empty bundle is not.
func parseContentBundle(raw string) (*ContentBundle, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, &ContentGenerationError{Reason: "response contains no JSON object"}
	}

	var bundle ContentBundle
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &bundle); err != nil {
		return nil, &ContentGenerationError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if bundle.ShowNotes == "" {
		return nil, &ContentGenerationError{Reason: "missing show notes"}
	}
	if len(bundle.Tweets) == 0 {
		return nil, &ContentGenerationError{Reason: "missing tweets"}
	}

	return &bundle, nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func charCount(s string) int {
	return utf8.RuneCountInString(s)
}

func wordCountAll(items []string) int {
	total := 0
	for _, s := range items {
		total += wordCount(s)
	}
	return total
}

func charCountAll(items []string) int {
	total := 0
	for _, s := range items {
		total += charCount(s)
	}
	return total
}
