package usecase

import (
	"context"
	"errors"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/gateway"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// handleChatMetadata processes a chats.update event, syncing the unread count
// the gateway reports onto the matching conversation. Counts captured before
// a recent read action are suppressed so they cannot resurrect stale badges.
func (s *EventService) handleChatMetadata(ctx context.Context, inbox *model.Inbox, event *model.RawEvent) error {
	log := logger.FromContext(ctx)

	var data model.ChatEventData
	if err := decodeEventData(event, &data); err != nil {
		return err
	}
	if data.RemoteJid == "" {
		return apperrors.NewFatal(apperrors.ErrBadRequest, "chat event without remote jid")
	}

	convo, err := s.conversations.FindConversationByThread(ctx, inbox.ID, data.RemoteJid)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Metadata for threads we have no messages of yet; the first
			// messages.upsert will create the conversation.
			log.Debug("Chat metadata for unknown conversation", zap.String("remote_jid", data.RemoteJid))
			return nil
		}
		return apperrors.NewRetryable(err, "failed to find conversation for thread %s", data.RemoteJid)
	}

	if data.UnreadCount == nil {
		// Count missing from the event: fall back to the gateway's chat list
		// and sync every conversation it reports for this inbox.
		return s.syncUnreadFromGateway(ctx, inbox)
	}

	return s.applyUnreadCount(ctx, convo, *data.UnreadCount)
}

// applyUnreadCount writes a gateway-reported unread count onto a conversation.
func (s *EventService) applyUnreadCount(ctx context.Context, convo *model.Conversation, count int32) error {
	log := logger.FromContext(ctx)

	if count == 0 {
		return s.markConversationRead(ctx, convo)
	}

	if s.readOverride.active(convo.ID) {
		log.Info("Suppressing stale unread count after recent read action",
			zap.Int64("conversation_id", convo.ID),
			zap.Int32("reported_unread", count),
		)
		return nil
	}

	if err := s.conversations.SetUnread(ctx, convo.ID, count); err != nil {
		return apperrors.NewRetryable(err, "failed to set unread count for conversation %d", convo.ID)
	}

	_ = s.notifier.Publish(ctx, s.accountID, model.RealtimeConversationUpdate, model.ConversationUpdatePayload{
		ConversationID: convo.ConversationID,
		UnreadCount:    count,
	})

	log.Info("Synced unread count",
		zap.Int64("conversation_id", convo.ID),
		zap.Int32("unread_count", count),
	)
	return nil
}

// syncUnreadFromGateway pulls the gateway's chat list and applies each
// reported unread count to the matching conversation concurrently. Gateway
// unavailability is not an event failure.
func (s *EventService) syncUnreadFromGateway(ctx context.Context, inbox *model.Inbox) error {
	log := logger.FromContext(ctx)

	chats, err := s.gateway.GetChats(ctx, inbox.Instance)
	if err != nil {
		log.Warn("Chat list fetch failed, skipping unread sync", zap.String("instance", inbox.Instance), zap.Error(err))
		return nil
	}

	iter.ForEach(chats, func(chat *gateway.Chat) {
		convo, findErr := s.conversations.FindConversationByThread(ctx, inbox.ID, chat.RemoteJid)
		if findErr != nil {
			if !errors.Is(findErr, apperrors.ErrNotFound) {
				log.Warn("Failed to look up conversation during unread sync",
					zap.String("remote_jid", chat.RemoteJid),
					zap.Error(findErr),
				)
			}
			return
		}
		if applyErr := s.applyUnreadCount(ctx, convo, chat.UnreadCount); applyErr != nil {
			log.Warn("Failed to apply unread count during sync",
				zap.Int64("conversation_id", convo.ID),
				zap.Error(applyErr),
			)
		}
	})

	log.Info("Synced unread counts from gateway chat list",
		zap.String("instance", inbox.Instance),
		zap.Int("chats", len(chats)),
	)
	return nil
}
