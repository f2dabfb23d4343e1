package webhook

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/daniel-neiva/nexcrm-sub000/internal/ingestion"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/internal/storage"
	"github.com/daniel-neiva/nexcrm-sub000/internal/tenant"
	"github.com/daniel-neiva/nexcrm-sub000/internal/validator"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// TriggerPublisher publishes a processing trigger for a stored raw event.
type TriggerPublisher interface {
	PublishTrigger(ctx context.Context, trigger ingestion.EventTrigger) error
}

// Handler ingests gateway webhook deliveries. Every accepted payload is
// persisted verbatim before a processing trigger is published, so the webhook
// response never depends on downstream processing.
type Handler struct {
	secret    string
	accountID string
	events    storage.EventRepo
	publisher TriggerPublisher
}

// NewHandler creates a webhook handler.
func NewHandler(secret, accountID string, events storage.EventRepo, publisher TriggerPublisher) *Handler {
	return &Handler{
		secret:    secret,
		accountID: accountID,
		events:    events,
		publisher: publisher,
	}
}

// keyedData is the minimal shape needed to pull a message ID out of the
// event payload for deduplication.
type keyedData struct {
	Key model.WireKey `json:"key"`
}

// HandleWebhook is the POST /webhook endpoint.
func (h *Handler) HandleWebhook(c *gin.Context) {
	ctx := tenant.WithAccountID(c.Request.Context(), h.accountID)
	requestID := uuid.NewString()
	ctx = tenant.WithRequestID(ctx, requestID)
	log := logger.Log.With(
		zap.String("request_id", requestID),
		zap.String("account_id", h.accountID),
	)
	ctx = logger.WithLogger(ctx, log)

	if !h.authorized(c) {
		observer.IncWebhookEventRejected("unauthorized")
		log.Warn("Rejected webhook delivery: bad or missing credential", zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		observer.IncWebhookEventRejected("body_read")
		log.Warn("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	envelope, err := model.DecodeWebhookEnvelope(body)
	if err != nil {
		observer.IncWebhookEventRejected("malformed_json")
		log.Warn("Rejected webhook delivery: malformed JSON", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON payload"})
		return
	}
	if err := validator.Validate(envelope); err != nil {
		observer.IncWebhookEventRejected("invalid_envelope")
		log.Warn("Rejected webhook delivery: invalid envelope", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventType, known := model.NormalizeEventType(envelope.Event)
	if !known {
		log.Debug("Accepting webhook with unrecognized event type",
			zap.String("event", envelope.Event),
			zap.String("instance", envelope.Instance),
		)
	}

	event := &model.RawEvent{
		ID:        uuid.NewString(),
		Instance:  envelope.Instance,
		EventType: eventType,
		EventKey:  eventKey(envelope.Instance, eventType, envelope.Data, body),
		Payload:   datatypes.JSON(body),
	}

	inserted, err := h.events.InsertRawEvent(ctx, event)
	if err != nil {
		observer.IncWebhookEventRejected("storage")
		log.Error("Failed to store raw event", zap.Error(err), zap.String("event_key", event.EventKey))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store event"})
		return
	}
	if !inserted {
		// A retry can mean the first delivery stored the row but died before
		// its trigger reached the stream. Republish for the stored row unless
		// it already ran; JetStream dedups on the event ID, so a second
		// trigger for a live row is absorbed.
		observer.IncWebhookEventDuplicate(eventType, h.accountID)
		stored, findErr := h.events.FindRawEventByKey(ctx, event.EventKey)
		if findErr != nil {
			log.Error("Failed to load stored event for duplicate delivery",
				zap.Error(findErr), zap.String("event_key", event.EventKey))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stored event"})
			return
		}
		if !stored.Processed {
			trigger := ingestion.EventTrigger{
				EventID:   stored.ID,
				EventType: stored.EventType,
				Instance:  stored.Instance,
			}
			if pubErr := h.publisher.PublishTrigger(ctx, trigger); pubErr != nil {
				log.Error("Failed to republish trigger for duplicate delivery",
					zap.Error(pubErr), zap.String("event_id", stored.ID))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
				return
			}
		}
		log.Info("Absorbed duplicate webhook delivery",
			zap.String("event_key", event.EventKey),
			zap.String("event_type", eventType),
			zap.Bool("pending", !stored.Processed),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "duplicate": true})
		return
	}

	trigger := ingestion.EventTrigger{
		EventID:   event.ID,
		EventType: eventType,
		Instance:  envelope.Instance,
	}
	if err := h.publisher.PublishTrigger(ctx, trigger); err != nil {
		// The raw event is durable; a 500 makes the gateway redeliver, and the
		// duplicate path above republishes the trigger for the stored row.
		log.Error("Failed to publish event trigger", zap.Error(err), zap.String("event_id", event.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
		return
	}

	observer.IncWebhookEventReceived(eventType, h.accountID)
	log.Info("Accepted webhook delivery",
		zap.String("event_id", event.ID),
		zap.String("event_type", eventType),
		zap.String("instance", envelope.Instance),
		zap.String("payload_size", utils.ByteCountSI(len(body))),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorized checks the shared secret in the apikey header or token query param.
func (h *Handler) authorized(c *gin.Context) bool {
	if h.secret == "" {
		return false
	}
	credential := c.GetHeader("apikey")
	if credential == "" {
		credential = c.Query("token")
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(h.secret)) == 1
}

// eventKey builds the deduplication key for a delivery. Message-bearing events
// key on the wire message ID; everything else keys on a payload digest.
func eventKey(instance, eventType string, data json.RawMessage, body []byte) string {
	var keyed keyedData
	if err := json.Unmarshal(data, &keyed); err == nil && keyed.Key.ID != "" {
		return fmt.Sprintf("%s:%s:%s", instance, eventType, keyed.Key.ID)
	}
	digest := sha256.Sum256(body)
	return fmt.Sprintf("%s:%s:%s", instance, eventType, hex.EncodeToString(digest[:]))
}
