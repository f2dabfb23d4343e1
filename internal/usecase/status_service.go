package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// handleMessageStatus processes a messages.update event. READ and PLAYED
// receipts clear the thread's unread state. Delivery acks carry no CRM
// meaning and are dropped, with one exception: group chats never emit READ
// statuses, their read receipts arrive as delivery acks from the sending
// device, so those are treated as read.
func (s *EventService) handleMessageStatus(ctx context.Context, inbox *model.Inbox, event *model.RawEvent) error {
	log := logger.FromContext(ctx)

	var data model.StatusEventData
	if err := decodeEventData(event, &data); err != nil {
		return err
	}
	if data.Key.RemoteJid == "" {
		return apperrors.NewFatal(apperrors.ErrBadRequest, "status event without remote jid")
	}

	switch {
	case data.Status == model.WireStatusRead || data.Status == model.WireStatusPlayed:
	case isInferredGroupRead(data):
		log.Debug("Treating own-device group delivery ack as read",
			zap.String("remote_jid", data.Key.RemoteJid))
	case data.Status == model.WireStatusDeliveryAck:
		log.Debug("Ignoring delivery ack", zap.String("remote_jid", data.Key.RemoteJid))
		return nil
	default:
		log.Debug("Ignoring unknown message status",
			zap.String("status", data.Status),
			zap.String("remote_jid", data.Key.RemoteJid),
		)
		return nil
	}

	convo, err := s.conversations.FindConversationByThread(ctx, inbox.ID, data.Key.RemoteJid)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Debug("Read receipt for unknown conversation", zap.String("remote_jid", data.Key.RemoteJid))
			return nil
		}
		return apperrors.NewRetryable(err, "failed to find conversation for thread %s", data.Key.RemoteJid)
	}

	return s.markConversationRead(ctx, convo)
}

// markConversationRead zeroes the unread counter, flips unread inbound
// messages and broadcasts the read receipt. Shared by status receipts and
// zero-count chat metadata.
func (s *EventService) markConversationRead(ctx context.Context, convo *model.Conversation) error {
	log := logger.FromContext(ctx)

	if err := s.conversations.SetUnread(ctx, convo.ID, 0); err != nil {
		return apperrors.NewRetryable(err, "failed to reset unread count for conversation %d", convo.ID)
	}
	if err := s.messages.MarkConversationRead(ctx, convo.ID); err != nil {
		log.Warn("Failed to mark messages read", zap.Int64("conversation_id", convo.ID), zap.Error(err))
	}
	s.readOverride.markRead(convo.ID)

	_ = s.notifier.Publish(ctx, s.accountID, model.RealtimeReadReceipt, model.ReadReceiptPayload{
		ConversationID: convo.ConversationID,
	})

	log.Info("Marked conversation read", zap.Int64("conversation_id", convo.ID))
	return nil
}

// isInferredGroupRead reports whether a delivery ack should count as a read
// receipt: in group chats the user's own device acks messages it has shown,
// and no READ status ever follows.
func isInferredGroupRead(data model.StatusEventData) bool {
	return data.Status == model.WireStatusDeliveryAck &&
		data.Key.FromMe &&
		model.IsGroupJID(data.Key.RemoteJid)
}
