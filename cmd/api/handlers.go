package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/podbrief/podbrief/internal/billing"
	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/internal/metrics"
	"github.com/podbrief/podbrief/internal/middleware"
	"github.com/podbrief/podbrief/internal/pipeline"
	"github.com/podbrief/podbrief/internal/plan"
	"github.com/podbrief/podbrief/internal/storage"
	"github.com/podbrief/podbrief/internal/subscription"
	"github.com/podbrief/podbrief/pkg/models"
)

// store is the repository surface the HTTP layer depends on.
type store interface {
	Health(ctx context.Context) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	EnsureProfile(ctx context.Context, userID, email string, quota int, resetDate time.Time) error
	CreateUpload(ctx context.Context, u *models.AudioUpload) error
	GetUpload(ctx context.Context, id string) (*models.AudioUpload, error)
	ListUploads(ctx context.Context, userID string, limit, offset int) ([]*models.AudioUpload, error)
	MarkUploadDeleted(ctx context.Context, id string) error
	GetJob(ctx context.Context, id string) (*models.ProcessingJob, error)
	GetJobsByUploadID(ctx context.Context, uploadID string) ([]*models.ProcessingJob, error)
	CancelJob(ctx context.Context, id string) error
	GetContentByUploadID(ctx context.Context, uploadID string) ([]*models.GeneratedContent, error)
	CreateSharedResult(ctx context.Context, s *models.SharedResult) error
	GetSharedResult(ctx context.Context, shareID string) (*models.SharedResult, error)
}

// objectStore is the blob storage surface the HTTP layer depends on.
type objectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectName string) error
	URL(ctx context.Context, objectName string) (string, error)
}

// resultCache caches public share snapshots and counts their views.
type resultCache interface {
	GetSharedResult(ctx context.Context, shareID string) (*models.SharedResult, error)
	SetSharedResult(ctx context.Context, result *models.SharedResult, ttl time.Duration) error
	IncrementStat(ctx context.Context, stat string) error
	GetStat(ctx context.Context, stat string) (int64, error)
}

// orchestrator runs the AI processing pipelines.
type orchestrator interface {
	Transcribe(ctx context.Context, req pipeline.TranscribeRequest) (*pipeline.TranscribeResult, error)
	GenerateContent(ctx context.Context, transcript string) (*pipeline.ContentBundle, error)
	RunPipeline(ctx context.Context, req pipeline.TranscribeRequest) (*pipeline.TranscribeResult, *pipeline.ContentBundle, error)
	LegacyTranscribe(ctx context.Context, audioURL string) (string, error)
}

// biller performs the billing-provider operations the edge endpoints expose.
type biller interface {
	Checkout(ctx context.Context, req billing.CheckoutParams) (string, string, error)
	PortalURLForCustomer(ctx context.Context, customerID, returnURL string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

const sharedResultTTL = 15 * time.Minute

// API bundles the dependencies of the HTTP layer.
type API struct {
	repo     store
	storage  objectStore
	cache    resultCache
	pipe     orchestrator
	billing  biller
	sessions *subscription.Manager
}

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	router.GET("/health", api.healthCheck)

	// Public share view
	router.GET("/shared/:id", api.getSharedResult)

	// Edge-style function endpoints
	fns := router.Group("/functions/v1")
	registerFunctions(fns, api)

	// REST surface
	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth())
	{
		v1.POST("/uploads", api.createUpload)
		v1.GET("/uploads", api.listUploads)
		v1.GET("/uploads/:id", api.getUpload)
		v1.DELETE("/uploads/:id", api.deleteUpload)
		v1.POST("/uploads/:id/process", api.processUpload)
		v1.GET("/uploads/:id/jobs", api.getUploadJobs)
		v1.GET("/uploads/:id/content", api.getUploadContent)
		v1.POST("/uploads/:id/share", api.shareUpload)

		v1.GET("/jobs/:id", api.getJob)
		v1.POST("/jobs/:id/cancel", api.cancelJob)

		v1.GET("/subscription", api.getSubscription)
	}

	return router
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.repo.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Upload audio endpoint
func (api *API) createUpload(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file provided"})
		return
	}

	// The plan's file-size ceiling applies before any bytes are stored.
	tier := plan.Free
	if profile, err := api.repo.GetProfile(c.Request.Context(), userID); err == nil {
		tier = profile.SubscriptionTier
	}
	limits := plan.For(tier).Limits
	if file.Size > limits.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File exceeds the %d MB limit for the %s plan", limits.MaxFileSize/(1024*1024), tier),
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	defer src.Close()

	upload := &models.AudioUpload{
		ID:       uuid.New().String(),
		UserID:   userID,
		Filename: file.Filename,
		Size:     file.Size,
		Status:   models.UploadStatusUploading,
	}
	upload.StorageKey = fmt.Sprintf("audio/%s/%s", upload.ID, file.Filename)

	contentType := storage.ContentType(file.Filename)
	if err := api.storage.Upload(c.Request.Context(), upload.StorageKey, src, file.Size, contentType); err != nil {
		metrics.RecordStorageOperation("upload", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to store file: %v", err)})
		return
	}
	metrics.RecordStorageOperation("upload", "success")

	upload.Status = models.UploadStatusUploaded
	if err := api.repo.CreateUpload(c.Request.Context(), upload); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create upload: %v", err)})
		return
	}

	metrics.AudioUploadsTotal.Inc()
	metrics.AudioUploadSizeBytes.Observe(float64(file.Size))

	c.JSON(http.StatusCreated, upload)
}

// List uploads endpoint
func (api *API) listUploads(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	limit := 20
	offset := 0

	uploads, err := api.repo.ListUploads(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploads": uploads,
		"limit":   limit,
		"offset":  offset,
	})
}

// ownedUpload loads an upload and enforces ownership. Foreign uploads read
// as not found.
func (api *API) ownedUpload(c *gin.Context) (*models.AudioUpload, bool) {
	userID, _ := middleware.GetUserID(c)

	upload, err := api.repo.GetUpload(c.Request.Context(), c.Param("id"))
	if err != nil || upload.UserID != userID || upload.Status == models.UploadStatusDeleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
		return nil, false
	}

	return upload, true
}

// Get upload endpoint
func (api *API) getUpload(c *gin.Context) {
	upload, ok := api.ownedUpload(c)
	if !ok {
		return
	}

	url, err := api.storage.URL(c.Request.Context(), upload.StorageKey)
	if err != nil {
		log.Warn().Err(err).Str("upload_id", upload.ID).Msg("Failed to presign audio URL")
	}

	c.JSON(http.StatusOK, gin.H{"upload": upload, "audio_url": url})
}

// Delete upload endpoint. The storage object goes first; a storage failure
// is logged but never blocks the row transition.
func (api *API) deleteUpload(c *gin.Context) {
	upload, ok := api.ownedUpload(c)
	if !ok {
		return
	}

	if upload.StorageKey != "" {
		if err := api.storage.Delete(c.Request.Context(), upload.StorageKey); err != nil {
			metrics.RecordStorageOperation("delete", "error")
			log.Warn().Err(err).Str("upload_id", upload.ID).Msg("Failed to delete storage object")
		} else {
			metrics.RecordStorageOperation("delete", "success")
		}
	}

	if err := api.repo.MarkUploadDeleted(c.Request.Context(), upload.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete upload: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Upload deleted successfully", "upload_id": upload.ID})
}

// Run the full pipeline for an upload
func (api *API) processUpload(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	upload, ok := api.ownedUpload(c)
	if !ok {
		return
	}

	var req struct {
		Language string `json:"language"`
	}
	_ = c.ShouldBindJSON(&req)

	audioURL, err := api.storage.URL(c.Request.Context(), upload.StorageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to resolve audio: %v", err)})
		return
	}

	tres, bundle, err := api.pipe.RunPipeline(c.Request.Context(), pipeline.TranscribeRequest{
		UserID:   userID,
		UploadID: upload.ID,
		AudioURL: audioURL,
		Language: req.Language,
	})
	if err != nil {
		status, body := pipelineErrorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"job_id":     tres.JobID,
		"transcript": tres.Transcript,
		"content":    bundle,
	})
}

// Get upload jobs endpoint
func (api *API) getUploadJobs(c *gin.Context) {
	upload, ok := api.ownedUpload(c)
	if !ok {
		return
	}

	jobs, err := api.repo.GetJobsByUploadID(c.Request.Context(), upload.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Get upload content endpoint
func (api *API) getUploadContent(c *gin.Context) {
	upload, ok := api.ownedUpload(c)
	if !ok {
		return
	}

	contents, err := api.repo.GetContentByUploadID(c.Request.Context(), upload.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"content": contents})
}

// Share upload endpoint: snapshots the upload's generated content under a
// random public share id.
func (api *API) shareUpload(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	upload, ok := api.ownedUpload(c)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Title == "" {
		req.Title = upload.Filename
	}

	contents, err := api.repo.GetContentByUploadID(c.Request.Context(), upload.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(contents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to share yet"})
		return
	}

	snapshot := models.Payload{}
	for _, content := range contents {
		snapshot[content.ContentType] = content.Content
	}

	shared := &models.SharedResult{
		ShareID:  uuid.New().String(),
		UploadID: upload.ID,
		UserID:   userID,
		Title:    req.Title,
		Content:  snapshot,
	}
	if err := api.repo.CreateSharedResult(c.Request.Context(), shared); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to share: %v", err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"share_id": shared.ShareID})
}

// Public share view, read-through cached, with a running view counter.
func (api *API) getSharedResult(c *gin.Context) {
	shareID := c.Param("id")

	if cached, err := api.cache.GetSharedResult(c.Request.Context(), shareID); err == nil && cached != nil {
		metrics.RecordCacheAccess("shared_result", true)
		c.JSON(http.StatusOK, gin.H{"result": cached, "views": api.countShareView(c.Request.Context(), shareID)})
		return
	}
	metrics.RecordCacheAccess("shared_result", false)

	shared, err := api.repo.GetSharedResult(c.Request.Context(), shareID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Shared result not found"})
		return
	}

	if err := api.cache.SetSharedResult(c.Request.Context(), shared, sharedResultTTL); err != nil {
		log.Warn().Err(err).Str("share_id", shareID).Msg("Failed to cache shared result")
	}

	c.JSON(http.StatusOK, gin.H{"result": shared, "views": api.countShareView(c.Request.Context(), shareID)})
}

// countShareView bumps and reads the view counter. Counting is best-effort;
// a cache failure never blocks the public page.
func (api *API) countShareView(ctx context.Context, shareID string) int64 {
	stat := "share_views:" + shareID
	if err := api.cache.IncrementStat(ctx, stat); err != nil {
		log.Warn().Err(err).Str("share_id", shareID).Msg("Failed to count share view")
		return 0
	}
	views, err := api.cache.GetStat(ctx, stat)
	if err != nil {
		return 0
	}
	return views
}

// Get job endpoint
func (api *API) getJob(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	job, err := api.repo.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil || job.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// Cancel job endpoint
func (api *API) cancelJob(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	jobID := c.Param("id")

	job, err := api.repo.GetJob(c.Request.Context(), jobID)
	if err != nil || job.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	if err := api.repo.CancelJob(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, database.ErrCannotCancel) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to cancel job: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Job cancelled successfully", "job_id": jobID})
}

// Subscription state projection for the current user.
func (api *API) getSubscription(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	session, err := api.sessions.Acquire(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}
	defer api.sessions.Release(userID)

	state := session.State()
	c.JSON(http.StatusOK, gin.H{
		"plan":         state.Plan,
		"subscription": state.Subscription,
		"usage":        session.Usage(),
	})
}

// pipelineErrorResponse maps orchestrator failures onto the HTTP contract.
func pipelineErrorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, pipeline.ErrRateLimited):
		return http.StatusTooManyRequests, gin.H{
			"status": "rate_limited",
			"error":  "Rate limit exceeded. Please wait before trying again.",
		}
	case errors.Is(err, pipeline.ErrQuotaExceeded):
		return http.StatusPaymentRequired, gin.H{
			"status": "quota_exceeded",
			"error":  "Monthly quota exceeded. Upgrade your plan to continue.",
		}
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, gin.H{
			"status": "error",
			"error":  err.Error(),
		}
	default:
		return http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  err.Error(),
		}
	}
}
