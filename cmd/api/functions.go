package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/podbrief/podbrief/internal/billing"
	"github.com/podbrief/podbrief/internal/metrics"
	"github.com/podbrief/podbrief/internal/middleware"
	"github.com/podbrief/podbrief/internal/pipeline"
	"github.com/podbrief/podbrief/internal/subscription"
)

// registerFunctions mounts the edge-style endpoints. Every function answers
// GET with a health payload; OPTIONS is handled by the CORS middleware.
func registerFunctions(group *gin.RouterGroup, api *API) {
	functions := map[string]gin.HandlerFunc{
		"create-checkout-session": api.fnCreateCheckoutSession,
		"create-portal-session":   api.fnCreatePortalSession,
		"stripe-webhook":          api.fnStripeWebhook,
		"generate-content":        api.fnGenerateContent,
		"transcribe":              api.fnTranscribe,
	}
	for name, handler := range functions {
		group.POST("/"+name, handler)
		group.GET("/"+name, functionHealth(name))
	}

	group.POST("/enhanced-transcribe", middleware.JWTAuth(), api.fnEnhancedTranscribe)
	group.GET("/enhanced-transcribe", functionHealth("enhanced-transcribe"))

	group.POST("/manage-subscription", middleware.JWTAuth(), api.fnManageSubscription)
	group.GET("/manage-subscription", functionHealth("manage-subscription"))
}

func functionHealth(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"function": name,
		})
	}
}

func (api *API) fnCreateCheckoutSession(c *gin.Context) {
	var req struct {
		PlanID     string `json:"planId"`
		UserID     string `json:"userId"`
		Email      string `json:"email"`
		Billing    string `json:"billing"`
		SuccessURL string `json:"successUrl"`
		CancelURL  string `json:"cancelUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.PlanID == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "planId and userId are required"})
		return
	}

	sessionID, url, err := api.billing.Checkout(c.Request.Context(), billing.CheckoutParams{
		UserID:     req.UserID,
		Email:      req.Email,
		PlanID:     req.PlanID,
		Cycle:      req.Billing,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		log.Warn().Err(err).Str("plan", req.PlanID).Msg("Checkout failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "url": url})
}

func (api *API) fnCreatePortalSession(c *gin.Context) {
	var req struct {
		CustomerID string `json:"customerId"`
		ReturnURL  string `json:"returnUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.CustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerId is required"})
		return
	}

	url, err := api.billing.PortalURLForCustomer(c.Request.Context(), req.CustomerID, req.ReturnURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// fnManageSubscription handles cancel and reactivate through the user's live
// session. The update action is not implemented and always fails.
func (api *API) fnManageSubscription(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req struct {
		Action string `json:"action"`
		PlanID string `json:"planId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	session, err := api.sessions.Acquire(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}
	defer api.sessions.Release(userID)

	switch req.Action {
	case "cancel":
		err = session.Cancel(c.Request.Context())
	case "reactivate":
		err = session.Reactivate(c.Request.Context())
	case "update":
		c.JSON(http.StatusBadRequest, gin.H{"error": "Plan updates are not supported; cancel and choose a new plan"})
		return
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
		return
	}

	if err != nil {
		if errors.Is(err, subscription.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": "Another billing action is in progress"})
			return
		}
		if errors.Is(err, billing.ErrNoSubscription) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No active subscription"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": session.State().Subscription})
}

func (api *API) fnStripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	err = api.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPayload) {
			metrics.RecordWebhookEvent("unknown", "rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		metrics.RecordWebhookEvent("unknown", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	metrics.RecordWebhookEvent("unknown", "ok")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fnEnhancedTranscribe is the gated transcription entry point. The gate
// outcomes map to distinct statuses so clients can tell "wait" from
// "upgrade".
func (api *API) fnEnhancedTranscribe(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req struct {
		UploadID string `json:"uploadId"`
		AudioURL string `json:"audioUrl"`
		Language string `json:"language"`
		Priority string `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Invalid request body"})
		return
	}
	if req.UploadID == "" || req.AudioURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "uploadId and audioUrl are required"})
		return
	}

	result, err := api.pipe.Transcribe(c.Request.Context(), pipeline.TranscribeRequest{
		UserID:   userID,
		UploadID: req.UploadID,
		AudioURL: req.AudioURL,
		Language: req.Language,
		Priority: req.Priority,
	})
	if err != nil {
		status, body := pipelineErrorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"jobId":      result.JobID,
		"transcript": result.Transcript,
		"message":    "Transcription completed",
	})
}

func (api *API) fnGenerateContent(c *gin.Context) {
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Transcript == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "transcript is required"})
		return
	}

	bundle, err := api.pipe.GenerateContent(c.Request.Context(), req.Transcript)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "content": bundle})
}

// fnTranscribe is the legacy ungated endpoint kept for old clients.
func (api *API) fnTranscribe(c *gin.Context) {
	var req struct {
		AudioURL string `json:"audioUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AudioURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "audioUrl is required"})
		return
	}

	transcript, err := api.pipe.LegacyTranscribe(c.Request.Context(), req.AudioURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "transcript": transcript})
}
