package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for webhook ingestion metrics
	webhookLabels = []string{"event_type", "account_id"}
	// Labels for standard event processing metrics
	eventProcessingLabels = []string{"event_type", "account_id"}
	// Labels for tracking specific processing actions
	eventActionLabels = []string{"event_type", "account_id", "action", "error_type"}

	// Webhook ingestion counters
	WebhookEventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_webhook_events_received_total",
			Help: "Total number of webhook deliveries accepted and persisted.",
		},
		webhookLabels,
	)
	WebhookEventsDuplicateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_webhook_events_duplicate_total",
			Help: "Total number of webhook deliveries dropped as duplicates of an already stored event.",
		},
		webhookLabels,
	)
	WebhookEventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_webhook_events_rejected_total",
			Help: "Total number of webhook deliveries rejected before persistence, labeled by reason.",
		},
		[]string{"reason"},
	)

	// Event processing counters
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_events_processed_total",
			Help: "Total number of events successfully processed and acknowledged.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_events_failed_total",
			Help: "Total number of events that failed processing (resulting in Nack or error).",
		},
		eventProcessingLabels,
	)

	// Histogram for processing duration
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_events_event_processing_duration_seconds",
			Help:    "Histogram of event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)

	// Counter for specific post-processing actions
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_event_processing_actions_total",
			Help: "Total count of specific actions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)

	// Global metrics instance
	Metrics *metricsStore
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "account_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_events_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- AI Reply Worker Pool Metrics ---
var (
	aiReplyLabels       = []string{"account_id"}
	aiReplyStatusLabels = []string{"account_id", "status"}

	aiReplyTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_ai_reply_tasks_submitted_total",
			Help: "Total number of AI reply tasks submitted to the worker pool.",
		},
		aiReplyLabels,
	)
	aiReplyTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_ai_reply_tasks_processed_total",
			Help: "Total number of AI reply tasks processed by the worker pool, labeled by final status.",
		},
		aiReplyStatusLabels,
	)
	aiReplyProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_events_ai_reply_processing_duration_seconds",
			Help:    "Histogram of processing durations for AI reply tasks.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s, LLM calls dominate
		},
		aiReplyLabels,
	)
	aiReplyQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_events_ai_reply_queue_length",
		Help: "Approximate number of tasks waiting in the AI reply worker pool queue.",
	})
)

// --- Outbound Call Metrics (gateway + LLM) ---
var (
	outboundCallLabels = []string{"target", "operation", "status"}

	OutboundCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_events_outbound_call_duration_seconds",
			Help:    "Histogram of outbound HTTP call durations to the WhatsApp gateway and LLM provider.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		outboundCallLabels,
	)
)

// --- LID Cache Metrics ---
var (
	lidCacheLabels = []string{"account_id", "result"}

	lidCacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_lid_cache_checks_total",
			Help: "Total number of LID cache lookups, labeled by result.",
		},
		lidCacheLabels,
	)
	lidCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_events_lid_cache_size",
		Help: "Current number of LID mappings held in memory.",
	})
)

// --- Realtime Publish Metrics ---
var (
	realtimeLabels = []string{"event", "account_id"}

	realtimePublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_realtime_published_total",
			Help: "Total number of realtime notifications published to NATS.",
		},
		realtimeLabels,
	)
	realtimePublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_realtime_publish_errors_total",
			Help: "Total number of errors while publishing realtime notifications.",
		},
		realtimeLabels,
	)
)

// metricsStore holds references to all Prometheus metrics. promauto handles
// registration; the instance just signals that InitMetrics ran.
type metricsStore struct{}

// InitMetrics initializes the Prometheus metrics if enabled. Call during
// application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		metricsEnabled = false
		return
	}
	metricsEnabled = true
	Metrics = &metricsStore{}
}

// IncWebhookEventReceived increments the accepted webhook counter.
func IncWebhookEventReceived(eventType, account string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsReceivedTotal.WithLabelValues(eventType, sanitizeAccount(account)).Inc()
}

// IncWebhookEventDuplicate increments the duplicate webhook counter.
func IncWebhookEventDuplicate(eventType, account string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsDuplicateTotal.WithLabelValues(eventType, sanitizeAccount(account)).Inc()
}

// IncWebhookEventRejected increments the rejected webhook counter.
func IncWebhookEventRejected(reason string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsRejectedTotal.WithLabelValues(reason).Inc()
}

// IncEventsProcessed increments the events processed counter.
func IncEventsProcessed(eventType, account string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeAccount(account)).Inc()
}

// IncEventsFailed increments the events failed counter.
func IncEventsFailed(eventType, account string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeAccount(account)).Inc()
}

// ObserveEventProcessingDuration records the processing time for an event.
func ObserveEventProcessingDuration(eventType, account string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeAccount(account)).Observe(duration.Seconds())
}

// IncEventProcessingAction increments the counter for a specific processing outcome.
func IncEventProcessingAction(eventType, account, action, errorType string) {
	if !metricsEnabled {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeAccount(account), action, SanitizeErrorType(errorType)).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, account string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeAccount(account), status).Observe(duration.Seconds())
}

// ObserveOutboundCallDuration records the duration of a gateway or LLM call.
func ObserveOutboundCallDuration(target, operation string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	OutboundCallDurationSeconds.WithLabelValues(target, operation, status).Observe(duration.Seconds())
}

// sanitizeAccount ensures the account label is valid or returns a default value.
func sanitizeAccount(account string) string {
	if account == "" {
		return "unknown"
	}
	return account
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

// --- AI Reply Worker Metric Helpers ---

// IncAIReplyTasksSubmitted increments the counter for submitted AI reply tasks.
func IncAIReplyTasksSubmitted(account string) {
	if Metrics != nil {
		aiReplyTasksSubmittedTotal.WithLabelValues(sanitizeAccount(account)).Inc()
	}
}

// IncAIReplyTasksProcessed increments the counter for processed AI reply tasks by status.
func IncAIReplyTasksProcessed(account, status string) {
	if Metrics != nil {
		aiReplyTasksProcessedTotal.WithLabelValues(sanitizeAccount(account), status).Inc()
	}
}

// ObserveAIReplyProcessingDuration records the processing time for an AI reply task.
func ObserveAIReplyProcessingDuration(account string, duration time.Duration) {
	if Metrics != nil {
		aiReplyProcessingDurationSeconds.WithLabelValues(sanitizeAccount(account)).Observe(duration.Seconds())
	}
}

// SetAIReplyQueueLength sets the current AI reply queue length.
func SetAIReplyQueueLength(length int) {
	if Metrics != nil {
		aiReplyQueueLength.Set(float64(length))
	}
}

// --- LID Cache Metric Helpers ---

// IncLIDCacheCheck increments the LID cache lookup counter.
func IncLIDCacheCheck(account, result string) {
	if Metrics != nil {
		lidCacheChecksTotal.WithLabelValues(sanitizeAccount(account), result).Inc()
	}
}

// SetLIDCacheSize sets the current number of in-memory LID mappings.
func SetLIDCacheSize(size int) {
	if Metrics != nil {
		lidCacheSize.Set(float64(size))
	}
}

// --- Realtime Metric Helpers ---

// IncRealtimePublished increments the counter for published realtime events.
func IncRealtimePublished(event, account string) {
	if Metrics != nil {
		realtimePublishedTotal.WithLabelValues(event, sanitizeAccount(account)).Inc()
	}
}

// IncRealtimePublishError increments the counter for realtime publish failures.
func IncRealtimePublishError(event, account string) {
	if Metrics != nil {
		realtimePublishErrorsTotal.WithLabelValues(event, sanitizeAccount(account)).Inc()
	}
}
