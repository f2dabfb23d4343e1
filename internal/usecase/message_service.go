package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/gateway"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/normalizer"
	"github.com/daniel-neiva/nexcrm-sub000/internal/tenant"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// resetCommand clears a conversation's history when received as an inbound
// text message.
const resetCommand = "/reset"

// lastMessageSummary is the compact thread preview stored on the conversation.
type lastMessageSummary struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Sender string `json:"sender"`
}

// handleMessageReceived processes a messages.upsert event end to end: identity
// resolution, contact and conversation upserts, message insert, unread
// accounting, realtime notification and AI reply dispatch.
func (s *EventService) handleMessageReceived(ctx context.Context, inbox *model.Inbox, event *model.RawEvent) error {
	log := logger.FromContext(ctx)

	var data model.MessageEventData
	if err := decodeEventData(event, &data); err != nil {
		return err
	}
	if data.Key.ID == "" || data.Key.RemoteJid == "" {
		return apperrors.NewFatal(apperrors.ErrBadRequest, "message event without key id or remote jid")
	}

	remoteJid := data.Key.RemoteJid
	isGroup := model.IsGroupJID(remoteJid)

	phone, err := s.resolvePhoneIdentity(ctx, data.Key)
	if err != nil {
		return err
	}

	content := normalizer.Normalize(data.Message)

	contact, err := s.upsertContactFromMessage(ctx, inbox, phone, remoteJid, data.PushName, isGroup, data.Key.FromMe)
	if err != nil {
		return err
	}

	convo, err := s.conversations.UpsertConversation(ctx, &model.Conversation{
		ConversationID:   uuid.NewString(),
		ExternalThreadID: remoteJid,
		InboxID:          inbox.ID,
		ContactID:        contact.ID,
		AccountID:        s.accountID,
		IsGroup:          isGroup,
		Status:           model.ConversationStatusOpen,
		AIEnabled:        true,
	})
	if err != nil {
		return apperrors.NewRetryable(err, "failed to upsert conversation for thread %s", remoteJid)
	}

	if !data.Key.FromMe && !isGroup && content.Type == model.MessageTypeText &&
		strings.EqualFold(strings.TrimSpace(content.Text), resetCommand) {
		return s.handleResetCommand(ctx, inbox, convo, remoteJid)
	}

	ts := utils.Now()
	if data.MessageTimestamp > 0 {
		ts = utils.UnixToTime(data.MessageTimestamp)
	}

	sender := model.MessageSenderContact
	if data.Key.FromMe {
		sender = model.MessageSenderUser
	}
	message := model.Message{
		MessageID:         uuid.NewString(),
		ExternalMessageID: data.Key.ID,
		ConversationID:    convo.ID,
		AccountID:         s.accountID,
		Sender:            sender,
		FromMe:            data.Key.FromMe,
		MessageType:       content.Type,
		Text:              content.Text,
		MediaURL:          content.MediaURL,
		IsRead:            data.Key.FromMe,
		Timestamp:         ts,
		RawMessage:        event.Payload,
	}

	inserted, err := s.messages.InsertMessage(ctx, &message)
	if err != nil {
		return apperrors.NewRetryable(err, "failed to insert message %s", data.Key.ID)
	}
	if !inserted {
		log.Info("Ignoring already stored message",
			zap.String("external_message_id", data.Key.ID),
			zap.Int64("conversation_id", convo.ID),
		)
		return nil
	}

	unread := convo.UnreadCount
	if message.IsInbound() {
		newCount, incErr := s.conversations.IncrementUnread(ctx, convo.ID)
		if incErr != nil {
			// The message row is already in; a stale counter heals on the
			// next read or metadata event.
			log.Warn("Failed to increment unread count", zap.Int64("conversation_id", convo.ID), zap.Error(incErr))
			unread = convo.UnreadCount + 1
		} else {
			unread = newCount
		}

		// Report the message read on the network side. Best effort only.
		refs := []gateway.MessageRef{{ID: data.Key.ID, RemoteJid: remoteJid, FromMe: false}}
		if readErr := s.gateway.MarkRead(ctx, inbox.Instance, refs); readErr != nil {
			log.Debug("Network mark-as-read failed",
				zap.String("external_message_id", data.Key.ID), zap.Error(readErr))
		}
	}

	summary := utils.MustMarshalJSON(lastMessageSummary{
		Type:   content.Type,
		Text:   utils.TruncateString(content.Text, 120),
		Sender: sender,
	})
	if touchErr := s.conversations.TouchLastMessage(ctx, convo.ID, ts, datatypes.JSON(summary)); touchErr != nil {
		log.Warn("Failed to update conversation preview", zap.Int64("conversation_id", convo.ID), zap.Error(touchErr))
	}

	_ = s.notifier.Publish(ctx, s.accountID, model.RealtimeNewMessage, model.NewMessagePayload{
		ConversationID: convo.ConversationID,
		Message:        &message,
		UnreadCount:    unread,
	})

	s.maybeEnqueueAIReply(ctx, inbox, convo, contact, message, isGroup)

	log.Info("Stored inbound message",
		zap.String("external_message_id", data.Key.ID),
		zap.String("message_type", content.Type),
		zap.Int64("conversation_id", convo.ID),
		zap.Bool("from_me", data.Key.FromMe),
	)
	return nil
}

// resolvePhoneIdentity maps the wire key onto the canonical phone identity.
// Group JIDs resolve to the group identifier; LID JIDs go through the mapping
// cache, learning new pairs when the gateway attaches the real phone JID.
func (s *EventService) resolvePhoneIdentity(ctx context.Context, key model.WireKey) (string, error) {
	log := logger.FromContext(ctx)
	remoteJid := key.RemoteJid

	if model.IsGroupJID(remoteJid) {
		return model.BareJID(remoteJid), nil
	}
	if !model.IsLIDJID(remoteJid) {
		return model.BareJID(remoteJid), nil
	}

	lid := model.BareJID(remoteJid)
	if key.SenderPn != "" {
		phone := model.BareJID(key.SenderPn)
		if err := s.lids.Record(ctx, lid, phone); err != nil {
			log.Warn("Failed to persist LID mapping", zap.String("lid", lid), zap.Error(err))
		}
		return phone, nil
	}

	phone, ok, err := s.lids.Resolve(ctx, lid)
	if err != nil {
		return "", apperrors.NewRetryable(err, "failed to resolve LID %s", lid)
	}
	if !ok {
		// Fall back to the LID itself: stable and unique, and the contact
		// merges with its phone identity once a mapping is learned.
		log.Warn("No phone mapping for LID, using LID as identity", zap.String("lid", lid))
		return lid, nil
	}
	return phone, nil
}

// upsertContactFromMessage creates or refreshes the contact for an inbound
// message and fetches its avatar best-effort when missing.
func (s *EventService) upsertContactFromMessage(ctx context.Context, inbox *model.Inbox, phone, remoteJid, pushName string, isGroup, fromMe bool) (*model.Contact, error) {
	log := logger.FromContext(ctx)

	contact, err := s.contacts.UpsertContact(ctx, &model.Contact{
		ContactID:   uuid.NewString(),
		PhoneNumber: phone,
		AccountID:   s.accountID,
		PushName:    pushName,
		IsGroup:     isGroup,
	})
	if err != nil {
		return nil, apperrors.NewRetryable(err, "failed to upsert contact %s", phone)
	}

	if contact.AvatarURL == "" && !fromMe {
		url, picErr := s.gateway.GetProfilePicture(ctx, inbox.Instance, remoteJid)
		if picErr != nil {
			log.Debug("Profile picture fetch failed", zap.String("remote_jid", remoteJid), zap.Error(picErr))
		} else if url != "" {
			if avatarErr := s.contacts.UpdateContactAvatar(ctx, contact.ID, url); avatarErr != nil {
				log.Warn("Failed to store contact avatar", zap.Int64("contact_id", contact.ID), zap.Error(avatarErr))
			} else {
				contact.AvatarURL = url
			}
		}
	}

	return contact, nil
}

// handleResetCommand wipes a conversation's history and confirms to the
// contact. The command message itself is not stored and no AI reply runs.
func (s *EventService) handleResetCommand(ctx context.Context, inbox *model.Inbox, convo *model.Conversation, remoteJid string) error {
	log := logger.FromContext(ctx)

	deleted, err := s.messages.DeleteConversationMessages(ctx, convo.ID)
	if err != nil {
		return apperrors.NewRetryable(err, "failed to clear conversation %d", convo.ID)
	}
	if unreadErr := s.conversations.SetUnread(ctx, convo.ID, 0); unreadErr != nil {
		log.Warn("Failed to reset unread count", zap.Int64("conversation_id", convo.ID), zap.Error(unreadErr))
	}

	_ = s.notifier.Publish(ctx, s.accountID, model.RealtimeMessagesCleared, model.MessagesClearedPayload{
		ConversationID: convo.ConversationID,
	})

	if _, sendErr := s.gateway.SendText(ctx, inbox.Instance, remoteJid, "Conversation history cleared."); sendErr != nil {
		log.Warn("Failed to send reset confirmation", zap.String("remote_jid", remoteJid), zap.Error(sendErr))
	}

	log.Info("Cleared conversation history",
		zap.Int64("conversation_id", convo.ID),
		zap.Int64("deleted_messages", deleted),
	)
	return nil
}

// maybeEnqueueAIReply submits an AI reply task when the message and thread
// qualify for automatic responses.
func (s *EventService) maybeEnqueueAIReply(ctx context.Context, inbox *model.Inbox, convo *model.Conversation, contact *model.Contact, message model.Message, isGroup bool) {
	log := logger.FromContext(ctx)

	switch {
	case s.aiWorker == nil:
		return
	case message.FromMe || isGroup:
		return
	case message.MessageType != model.MessageTypeText || strings.TrimSpace(message.Text) == "":
		return
	case !inbox.AIEnabled:
		log.Debug("AI replies disabled for inbox", zap.String("inbox_id", inbox.InboxID))
		return
	case !convo.AIEnabled:
		log.Debug("AI replies disabled for conversation", zap.Int64("conversation_id", convo.ID))
		return
	}

	task := AIReplyTask{
		Ctx:          s.detachedContext(ctx),
		Inbox:        *inbox,
		Conversation: *convo,
		Contact:      *contact,
		Message:      message,
	}
	if err := s.aiWorker.SubmitTask(task); err != nil {
		log.Warn("Failed to submit AI reply task",
			zap.String("external_message_id", message.ExternalMessageID),
			zap.Error(err),
		)
	}
}

// detachedContext carries tenant identity and logging fields into a fresh
// context so queued work outlives the consumer's message context.
func (s *EventService) detachedContext(ctx context.Context) context.Context {
	detached := context.Background()
	detached = logger.WithLogger(detached, logger.FromContext(ctx))
	return tenant.WithAccountID(detached, s.accountID)
}
