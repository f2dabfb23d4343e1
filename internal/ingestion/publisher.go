package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/jetstream"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// EventTrigger is the JetStream payload that points the processor at a stored
// raw event. The webhook persists the full payload first; only the reference
// travels through the stream.
type EventTrigger struct {
	EventID   string `json:"event_id" validate:"required"`
	EventType string `json:"event_type"`
	Instance  string `json:"instance"`
}

// TriggerPublisher publishes event triggers on the account-scoped subject.
type TriggerPublisher struct {
	client    jetstream.ClientInterface
	subject   string // full subject including the account suffix
	accountID string
}

// NewTriggerPublisher creates a publisher for the given base subject and account.
func NewTriggerPublisher(client jetstream.ClientInterface, baseSubject, accountID string) *TriggerPublisher {
	return &TriggerPublisher{
		client:    client,
		subject:   fmt.Sprintf("%s.%s", baseSubject, accountID),
		accountID: accountID,
	}
}

// PublishTrigger publishes one trigger. The event ID doubles as the NATS
// message ID so JetStream deduplicates republished triggers within its window.
func (p *TriggerPublisher) PublishTrigger(ctx context.Context, trigger EventTrigger) error {
	data, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal event trigger: %v", apperrors.ErrNATS, err)
	}

	headers := map[string]string{"Nats-Msg-Id": trigger.EventID}
	if err := p.client.Publish(p.subject, data, headers); err != nil {
		logger.FromContext(ctx).Error("Failed to publish event trigger",
			zap.String("subject", p.subject),
			zap.String("event_id", trigger.EventID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: failed to publish event trigger %s: %v", apperrors.ErrNATS, trigger.EventID, err)
	}

	logger.FromContext(ctx).Debug("Published event trigger",
		zap.String("subject", p.subject),
		zap.String("event_id", trigger.EventID),
		zap.String("event_type", trigger.EventType),
	)
	return nil
}
