package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podbrief_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	AudioUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "podbrief_audio_uploads_total",
			Help: "Total number of audio uploads",
		},
	)

	AudioUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "podbrief_audio_upload_size_bytes",
			Help:    "Size of uploaded audio files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 13), // 1MB to 4GB
		},
	)

	// Job Metrics
	JobsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_jobs_created_total",
			Help: "Total number of processing jobs created",
		},
		[]string{"job_type"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_jobs_completed_total",
			Help: "Total number of finished processing jobs",
		},
		[]string{"job_type", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podbrief_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"job_type"},
	)

	// Gate Metrics
	GateRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_gate_rejections_total",
			Help: "Total number of requests rejected by the rate or quota gate",
		},
		[]string{"reason", "tier"},
	)

	// Provider Metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_provider_requests_total",
			Help: "Total number of AI provider requests",
		},
		[]string{"provider", "status"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podbrief_provider_request_duration_seconds",
			Help:    "AI provider request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"provider"},
	)

	AudioDurationProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "podbrief_audio_duration_processed_seconds_total",
			Help: "Total duration of audio transcribed in seconds",
		},
	)

	// Billing Metrics
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_webhook_events_total",
			Help: "Total number of billing webhook events",
		},
		[]string{"type", "status"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podbrief_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordJobCreated records a job creation
func RecordJobCreated(jobType string) {
	JobsCreatedTotal.WithLabelValues(jobType).Inc()
}

// RecordJobCompleted records a finished job
func RecordJobCompleted(jobType, status string, duration float64) {
	JobsCompletedTotal.WithLabelValues(jobType, status).Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration)
}

// RecordGateRejection records a rate or quota rejection
func RecordGateRejection(reason, tier string) {
	GateRejectionsTotal.WithLabelValues(reason, tier).Inc()
}

// RecordProviderRequest records one AI provider call
func RecordProviderRequest(provider, status string, duration float64) {
	ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	ProviderRequestDuration.WithLabelValues(provider).Observe(duration)
}

// RecordWebhookEvent records a billing webhook event
func RecordWebhookEvent(eventType, status string) {
	WebhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
