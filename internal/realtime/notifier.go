// Package realtime broadcasts UI-facing events over core NATS. Delivery is
// fire-and-forget: a missed notification only delays the frontend until its
// next refetch, so failures are counted and logged but never retried.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// Notifier publishes realtime events to connected frontends.
type Notifier interface {
	Publish(ctx context.Context, accountID, event string, payload interface{}) error
}

// rawPublisher is the slice of *nats.Conn the notifier needs.
type rawPublisher interface {
	Publish(subject string, data []byte) error
}

var _ rawPublisher = (*nats.Conn)(nil)

// NATSNotifier publishes realtime events on the subject
// <prefix>.<account>.<event>.
type NATSNotifier struct {
	nc     rawPublisher
	prefix string
}

// NewNATSNotifier creates a notifier on an existing NATS connection.
func NewNATSNotifier(nc rawPublisher, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = "realtime"
	}
	return &NATSNotifier{nc: nc, prefix: prefix}
}

// Publish sends one realtime event. The payload is wrapped in the standard
// envelope so subscribers can dispatch on the event name.
func (n *NATSNotifier) Publish(ctx context.Context, accountID, event string, payload interface{}) error {
	envelope := model.RealtimeEvent{
		Event:     event,
		AccountID: accountID,
		Payload:   payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		observer.IncRealtimePublishError(event, accountID)
		return fmt.Errorf("failed to marshal realtime event %s: %w", event, err)
	}

	subject := fmt.Sprintf("%s.%s.%s", n.prefix, accountID, event)
	if err := n.nc.Publish(subject, data); err != nil {
		observer.IncRealtimePublishError(event, accountID)
		logger.FromContext(ctx).Warn("Failed to publish realtime event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish realtime event on %s: %w", subject, err)
	}

	observer.IncRealtimePublished(event, accountID)
	logger.FromContext(ctx).Debug("Published realtime event",
		zap.String("subject", subject),
		zap.Int("bytes", len(data)),
	)
	return nil
}
