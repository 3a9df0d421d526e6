package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podbrief/podbrief/internal/billing"
	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/internal/middleware"
	"github.com/podbrief/podbrief/internal/pipeline"
	"github.com/podbrief/podbrief/internal/plan"
	"github.com/podbrief/podbrief/internal/subscription"
	"github.com/podbrief/podbrief/pkg/models"
)

type fakeRepo struct {
	profile *models.Profile
	uploads map[string]*models.AudioUpload
	jobs    map[string]*models.ProcessingJob
	content []*models.GeneratedContent
	shares  map[string]*models.SharedResult
	deleted []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		uploads: make(map[string]*models.AudioUpload),
		jobs:    make(map[string]*models.ProcessingJob),
		shares:  make(map[string]*models.SharedResult),
	}
}

func (r *fakeRepo) Health(ctx context.Context) error { return nil }

func (r *fakeRepo) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if r.profile == nil {
		return nil, database.ErrNotFound
	}
	return r.profile, nil
}

func (r *fakeRepo) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return nil, database.ErrNotFound
}

func (r *fakeRepo) EnsureProfile(ctx context.Context, userID, email string, quota int, resetDate time.Time) error {
	return nil
}

func (r *fakeRepo) CreateUpload(ctx context.Context, u *models.AudioUpload) error {
	r.uploads[u.ID] = u
	return nil
}

func (r *fakeRepo) GetUpload(ctx context.Context, id string) (*models.AudioUpload, error) {
	u, ok := r.uploads[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) ListUploads(ctx context.Context, userID string, limit, offset int) ([]*models.AudioUpload, error) {
	var out []*models.AudioUpload
	for _, u := range r.uploads {
		if u.UserID == userID && u.Status != models.UploadStatusDeleted {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkUploadDeleted(ctx context.Context, id string) error {
	if u, ok := r.uploads[id]; ok {
		u.Status = models.UploadStatusDeleted
	}
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) GetJob(ctx context.Context, id string) (*models.ProcessingJob, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return j, nil
}

func (r *fakeRepo) GetJobsByUploadID(ctx context.Context, uploadID string) ([]*models.ProcessingJob, error) {
	var out []*models.ProcessingJob
	for _, j := range r.jobs {
		if j.UploadID == uploadID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *fakeRepo) CancelJob(ctx context.Context, id string) error {
	j, ok := r.jobs[id]
	if !ok || (j.Status != models.JobStatusPending && j.Status != models.JobStatusRunning) {
		return database.ErrCannotCancel
	}
	j.Status = models.JobStatusCancelled
	return nil
}

func (r *fakeRepo) GetContentByUploadID(ctx context.Context, uploadID string) ([]*models.GeneratedContent, error) {
	var out []*models.GeneratedContent
	for _, c := range r.content {
		if c.UploadID == uploadID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateSharedResult(ctx context.Context, s *models.SharedResult) error {
	r.shares[s.ShareID] = s
	return nil
}

func (r *fakeRepo) GetSharedResult(ctx context.Context, shareID string) (*models.SharedResult, error) {
	s, ok := r.shares[shareID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s, nil
}

type fakeObjectStore struct {
	uploaded  map[string][]byte
	deleteErr error
	deleted   []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploaded: make(map[string][]byte)}
}

func (s *fakeObjectStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.uploaded[objectName] = data
	return nil
}

func (s *fakeObjectStore) Delete(ctx context.Context, objectName string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, objectName)
	return nil
}

func (s *fakeObjectStore) URL(ctx context.Context, objectName string) (string, error) {
	return "https://storage.example/" + objectName, nil
}

type fakeCache struct {
	shares map[string]*models.SharedResult
	stats  map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		shares: make(map[string]*models.SharedResult),
		stats:  make(map[string]int64),
	}
}

func (c *fakeCache) GetSharedResult(ctx context.Context, shareID string) (*models.SharedResult, error) {
	return c.shares[shareID], nil
}

func (c *fakeCache) SetSharedResult(ctx context.Context, result *models.SharedResult, ttl time.Duration) error {
	c.shares[result.ShareID] = result
	return nil
}

func (c *fakeCache) IncrementStat(ctx context.Context, stat string) error {
	c.stats[stat]++
	return nil
}

func (c *fakeCache) GetStat(ctx context.Context, stat string) (int64, error) {
	return c.stats[stat], nil
}

type fakePipe struct {
	transcribeErr error
	generateErr   error
}

func (p *fakePipe) Transcribe(ctx context.Context, req pipeline.TranscribeRequest) (*pipeline.TranscribeResult, error) {
	if p.transcribeErr != nil {
		return nil, p.transcribeErr
	}
	return &pipeline.TranscribeResult{JobID: "job-1", Transcript: "hello world"}, nil
}

func (p *fakePipe) GenerateContent(ctx context.Context, transcript string) (*pipeline.ContentBundle, error) {
	if p.generateErr != nil {
		return nil, p.generateErr
	}
	return &pipeline.ContentBundle{ShowNotes: "notes", Tweets: []string{"t"}}, nil
}

func (p *fakePipe) RunPipeline(ctx context.Context, req pipeline.TranscribeRequest) (*pipeline.TranscribeResult, *pipeline.ContentBundle, error) {
	if p.transcribeErr != nil {
		return nil, nil, p.transcribeErr
	}
	return &pipeline.TranscribeResult{JobID: "job-1", Transcript: "hello world"},
		&pipeline.ContentBundle{ShowNotes: "notes", Tweets: []string{"t"}}, nil
}

func (p *fakePipe) LegacyTranscribe(ctx context.Context, audioURL string) (string, error) {
	if p.transcribeErr != nil {
		return "", p.transcribeErr
	}
	return "legacy transcript", nil
}

type fakeBillerAPI struct {
	checkoutErr  error
	lastCheckout billing.CheckoutParams
}

func (b *fakeBillerAPI) Checkout(ctx context.Context, req billing.CheckoutParams) (string, string, error) {
	b.lastCheckout = req
	if b.checkoutErr != nil {
		return "", "", b.checkoutErr
	}
	return "cs_test_123", "https://checkout.example/" + req.PlanID, nil
}

func (b *fakeBillerAPI) PortalURLForCustomer(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.example/" + customerID, nil
}

func (b *fakeBillerAPI) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return nil
}

func (b *fakeBillerAPI) CheckoutURL(ctx context.Context, userID, email, planID string) (string, error) {
	_, url, err := b.Checkout(ctx, billing.CheckoutParams{UserID: userID, Email: email, PlanID: planID})
	return url, err
}

func (b *fakeBillerAPI) PortalURL(ctx context.Context, userID string) (string, error) {
	return "https://portal.example/" + userID, nil
}

func (b *fakeBillerAPI) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error {
	return nil
}

func newTestAPI(repo *fakeRepo, pipe *fakePipe) (*API, *fakeObjectStore) {
	objects := newFakeObjectStore()
	b := &fakeBillerAPI{}
	return &API{
		repo:     repo,
		storage:  objects,
		cache:    newFakeCache(),
		pipe:     pipe,
		billing:  b,
		sessions: subscription.NewManager(repo, b, nil),
	}, objects
}

func authedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	token, err := middleware.GenerateToken("user-1", "user@example.com", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	return req
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	middleware.SetJWTSecret("test-secret")
	m.Run()
}

func TestEnhancedTranscribe_RequiresAuth(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/v1/enhanced-transcribe", bytes.NewReader([]byte(`{}`)))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnhancedTranscribe_Success(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := authedRequest(t, "POST", "/functions/v1/enhanced-transcribe", map[string]string{
		"uploadId": "upload-1",
		"audioUrl": "https://storage.example/audio.mp3",
	})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "job-1", resp["jobId"])
	assert.Equal(t, "hello world", resp["transcript"])
}

func TestEnhancedTranscribe_MissingFields(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := authedRequest(t, "POST", "/functions/v1/enhanced-transcribe", map[string]string{
		"uploadId": "upload-1",
	})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnhancedTranscribe_GateStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{"rate limited", pipeline.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"quota exceeded", pipeline.ErrQuotaExceeded, http.StatusPaymentRequired, "quota_exceeded"},
		{"provider failure", errors.New("whisper unavailable"), http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := newTestAPI(newFakeRepo(), &fakePipe{transcribeErr: tt.err})
			router := setupRouter(api)

			w := httptest.NewRecorder()
			req := authedRequest(t, "POST", "/functions/v1/enhanced-transcribe", map[string]string{
				"uploadId": "upload-1",
				"audioUrl": "https://storage.example/audio.mp3",
			})
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp["status"])
		})
	}
}

func TestGenerateContent(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/v1/generate-content",
		bytes.NewReader([]byte(`{"transcript": "hello world"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.NotNil(t, resp["content"])
}

func TestGenerateContent_ProviderError(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{
		generateErr: &pipeline.ContentGenerationError{Reason: "invalid JSON"},
	})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/v1/generate-content",
		bytes.NewReader([]byte(`{"transcript": "hello world"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
}

func TestLegacyTranscribe(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/v1/transcribe",
		bytes.NewReader([]byte(`{"audioUrl": "https://example.com/a.mp3"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "legacy transcript", resp["transcript"])
}

func TestFunctionPreflightAndHealth(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/functions/v1/enhanced-transcribe", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/functions/v1/generate-content", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestCreateCheckoutSession(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/v1/create-checkout-session",
		bytes.NewReader([]byte(`{"planId": "pro", "userId": "user-1", "billing": "monthly"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cs_test_123", resp["sessionId"])
	assert.Contains(t, resp["url"], "pro")
}

func TestCreateCheckoutSession_PassesCycleAndReturnURLs(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/v1/create-checkout-session",
		bytes.NewReader([]byte(`{
			"planId": "pro",
			"userId": "user-1",
			"billing": "yearly",
			"successUrl": "https://app.example/welcome",
			"cancelUrl": "https://app.example/pricing"
		}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	b := api.billing.(*fakeBillerAPI)
	assert.Equal(t, "yearly", b.lastCheckout.Cycle)
	assert.Equal(t, "https://app.example/welcome", b.lastCheckout.SuccessURL)
	assert.Equal(t, "https://app.example/pricing", b.lastCheckout.CancelURL)
}

func TestCreateCheckoutSession_MissingPlan(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/v1/create-checkout-session",
		bytes.NewReader([]byte(`{"userId": "user-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManageSubscription_UpdateAlwaysFails(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := authedRequest(t, "POST", "/functions/v1/manage-subscription", map[string]string{
		"action": "update",
		"planId": "agency",
	})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManageSubscription_Cancel(t *testing.T) {
	repo := newFakeRepo()
	repo.profile = &models.Profile{
		UserID:           "user-1",
		SubscriptionTier: plan.Pro,
		CurrentUsage:     1,
		UsageQuota:       50,
	}
	api, _ := newTestAPI(repo, &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := authedRequest(t, "POST", "/functions/v1/manage-subscription", map[string]string{
		"action": "cancel",
	})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}

func TestCreateUpload(t *testing.T) {
	repo := newFakeRepo()
	repo.profile = &models.Profile{
		UserID:           "user-1",
		SubscriptionTier: plan.Free,
		UsageQuota:       3,
	}
	api, _ := newTestAPI(repo, &fakePipe{})
	router := setupRouter(api)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "episode.mp3")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a"), 1024))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	token, err := middleware.GenerateToken("user-1", "user@example.com", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.uploads, 1)
	for _, u := range repo.uploads {
		assert.Equal(t, models.UploadStatusUploaded, u.Status)
		assert.Contains(t, u.StorageKey, "audio/")
	}
}

func TestDeleteUpload_StorageFailureStillSoftDeletes(t *testing.T) {
	repo := newFakeRepo()
	repo.uploads["upload-1"] = &models.AudioUpload{
		ID:         "upload-1",
		UserID:     "user-1",
		StorageKey: "audio/upload-1/episode.mp3",
		Status:     models.UploadStatusCompleted,
	}
	api, objects := newTestAPI(repo, &fakePipe{})
	objects.deleteErr = errors.New("minio unavailable")
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := authedRequest(t, "DELETE", "/api/v1/uploads/upload-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.UploadStatusDeleted, repo.uploads["upload-1"].Status)
}

func TestGetUpload_ForeignUserIsNotFound(t *testing.T) {
	repo := newFakeRepo()
	repo.uploads["upload-1"] = &models.AudioUpload{
		ID:     "upload-1",
		UserID: "someone-else",
		Status: models.UploadStatusCompleted,
	}
	api, _ := newTestAPI(repo, &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := authedRequest(t, "GET", "/api/v1/uploads/upload-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelJob(t *testing.T) {
	repo := newFakeRepo()
	repo.jobs["job-1"] = &models.ProcessingJob{
		ID:     "job-1",
		UserID: "user-1",
		Status: models.JobStatusRunning,
	}
	repo.jobs["job-2"] = &models.ProcessingJob{
		ID:     "job-2",
		UserID: "user-1",
		Status: models.JobStatusCompleted,
	}
	api, _ := newTestAPI(repo, &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, "POST", "/api/v1/jobs/job-1/cancel", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.JobStatusCancelled, repo.jobs["job-1"].Status)

	// finished jobs cannot be cancelled
	w = httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, "POST", "/api/v1/jobs/job-2/cancel", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestShareAndPublicView(t *testing.T) {
	repo := newFakeRepo()
	repo.uploads["upload-1"] = &models.AudioUpload{
		ID:     "upload-1",
		UserID: "user-1",
		Status: models.UploadStatusCompleted,
	}
	repo.content = []*models.GeneratedContent{
		{
			UploadID:    "upload-1",
			ContentType: models.ContentTypeTranscript,
			Content:     models.Payload{"text": "hello world"},
		},
		{
			UploadID:    "upload-1",
			ContentType: models.ContentTypeShowNotes,
			Content:     models.Payload{"text": "notes"},
		},
	}
	api, _ := newTestAPI(repo, &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	req := authedRequest(t, "POST", "/api/v1/uploads/upload-1/share", map[string]string{"title": "Episode 1"})
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	shareID := created["share_id"]
	require.NotEmpty(t, shareID)

	// public read needs no auth
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/shared/"+shareID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var viewed struct {
		Result models.SharedResult `json:"result"`
		Views  int64               `json:"views"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &viewed))
	assert.Equal(t, "Episode 1", viewed.Result.Title)
	assert.Contains(t, viewed.Result.Content, models.ContentTypeShowNotes)
	assert.Equal(t, int64(1), viewed.Views)

	// each public view bumps the counter
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/shared/"+shareID, nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &viewed))
	assert.Equal(t, int64(2), viewed.Views)
}

func TestShareUpload_NothingToShare(t *testing.T) {
	repo := newFakeRepo()
	repo.uploads["upload-1"] = &models.AudioUpload{
		ID:     "upload-1",
		UserID: "user-1",
		Status: models.UploadStatusUploaded,
	}
	api, _ := newTestAPI(repo, &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, "POST", "/api/v1/uploads/upload-1/share", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.profile = &models.Profile{
		UserID:           "user-1",
		SubscriptionTier: plan.Hobby,
		CurrentUsage:     5,
		UsageQuota:       10,
	}
	api, _ := newTestAPI(repo, &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, "GET", "/api/v1/subscription", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Usage subscription.UsageData `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Usage.CurrentUsage)
	assert.Equal(t, 50, resp.Usage.Percent)
	assert.Equal(t, plan.Hobby, resp.Usage.Tier)
}

func TestHealthCheck(t *testing.T) {
	api, _ := newTestAPI(newFakeRepo(), &fakePipe{})
	router := setupRouter(api)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
