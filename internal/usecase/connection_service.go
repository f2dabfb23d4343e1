package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// handleConnectionState processes a connection.update event. Only actual
// transitions are broadcast; the gateway repeats the current state liberally.
func (s *EventService) handleConnectionState(ctx context.Context, inbox *model.Inbox, event *model.RawEvent) error {
	log := logger.FromContext(ctx)

	var data model.ConnectionEventData
	if err := decodeEventData(event, &data); err != nil {
		return err
	}
	if data.State == "" {
		return apperrors.NewFatal(apperrors.ErrBadRequest, "connection event without state")
	}

	status := model.InboxStatusFromWire(data.State)
	changed, err := s.inboxes.UpdateInboxStatus(ctx, inbox.InboxID, status)
	if err != nil {
		return apperrors.NewRetryable(err, "failed to update inbox %s status", inbox.InboxID)
	}
	if !changed {
		log.Debug("Inbox status unchanged",
			zap.String("inbox_id", inbox.InboxID),
			zap.String("status", status),
		)
		return nil
	}

	_ = s.notifier.Publish(ctx, s.accountID, model.RealtimeInboxStatus, model.InboxStatusPayload{
		InboxID: inbox.InboxID,
		Status:  status,
	})

	log.Info("Inbox connection status changed",
		zap.String("inbox_id", inbox.InboxID),
		zap.String("status", status),
		zap.Int("status_code", data.StatusCode),
	)
	return nil
}
