package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// ProcessEvent loads the raw event referenced by a trigger and dispatches it
// to the handler for its type. Implements ingestion.Processor.
func (s *EventService) ProcessEvent(ctx context.Context, eventID string) error {
	log := logger.FromContext(ctx)
	start := utils.Now()

	event, err := s.events.FindRawEventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// A trigger without its event row cannot recover by redelivery.
			log.Error("Raw event not found for trigger", zap.String("event_id", eventID))
			return apperrors.NewFatal(err, "raw event %s not found", eventID)
		}
		return apperrors.NewRetryable(err, "failed to load raw event %s", eventID)
	}

	if event.Processed {
		log.Info("Skipping already processed event",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType),
		)
		return nil
	}

	inbox, err := s.inboxes.FindInboxByInstance(ctx, event.Instance)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deliveries for unknown instances are recorded and closed out;
			// a later inbox registration does not replay them.
			log.Warn("No inbox registered for instance, ignoring event",
				zap.String("event_id", eventID),
				zap.String("instance", event.Instance),
			)
			reason := "ignored: no inbox registered for instance " + event.Instance
			if igErr := s.events.MarkEventIgnored(ctx, eventID, reason); igErr != nil {
				return apperrors.NewRetryable(igErr, "failed to mark event %s ignored", eventID)
			}
			return nil
		}
		return apperrors.NewRetryable(err, "failed to resolve inbox for instance %s", event.Instance)
	}

	handlerErr := s.dispatchEvent(ctx, inbox, event)
	if handlerErr != nil {
		log.Error("Event handler failed",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType),
			zap.Error(handlerErr),
		)
		if recErr := s.events.RecordEventError(ctx, eventID, handlerErr.Error()); recErr != nil {
			log.Error("Failed to record event error", zap.Error(recErr))
		}
		return classifyProcessingError(handlerErr)
	}

	if err := s.finishEvent(ctx, eventID); err != nil {
		return err
	}

	log.Debug("Event processed",
		zap.String("event_id", eventID),
		zap.String("event_type", event.EventType),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// dispatchEvent routes a raw event to the handler for its type. Unrecognized
// types are logged and dropped.
func (s *EventService) dispatchEvent(ctx context.Context, inbox *model.Inbox, event *model.RawEvent) error {
	switch event.EventType {
	case model.EventMessageReceived:
		return s.handleMessageReceived(ctx, inbox, event)
	case model.EventMessageStatus:
		return s.handleMessageStatus(ctx, inbox, event)
	case model.EventChatMetadata:
		return s.handleChatMetadata(ctx, inbox, event)
	case model.EventConnectionState:
		return s.handleConnectionState(ctx, inbox, event)
	default:
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.EventType),
		)
		return nil
	}
}

// finishEvent marks the event processed; failures are retryable so the
// trigger redelivers and the processed flag eventually lands.
func (s *EventService) finishEvent(ctx context.Context, eventID string) error {
	if err := s.events.MarkEventProcessed(ctx, eventID); err != nil {
		return apperrors.NewRetryable(err, "failed to mark event %s processed", eventID)
	}
	return nil
}

// classifyProcessingError wraps a handler error so the consumer knows whether
// redelivery could help. Transient infrastructure failures retry; everything
// else is final.
func classifyProcessingError(err error) error {
	switch {
	case apperrors.IsRetryable(err) || apperrors.IsFatal(err):
		return err
	case errors.Is(err, apperrors.ErrDatabase),
		errors.Is(err, apperrors.ErrTimeout),
		errors.Is(err, apperrors.ErrNATS):
		return apperrors.NewRetryable(err, "transient failure while processing event")
	default:
		return apperrors.NewFatal(err, "event processing failed")
	}
}

// decodeEventData unwraps the stored webhook envelope and decodes its data
// section into out.
func decodeEventData(event *model.RawEvent, out interface{}) error {
	var envelope model.WebhookEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return apperrors.NewFatal(err, "failed to decode stored webhook envelope")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return apperrors.NewFatal(err, "failed to decode %s event data", event.EventType)
	}
	return nil
}
