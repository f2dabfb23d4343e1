package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
)

func statusEvent(t *testing.T, remoteJid, status string) *model.RawEvent {
	return rawEvent(t, model.EventMessageStatus, model.StatusEventData{
		Key:    model.WireKey{ID: "WAMID-1", RemoteJid: remoteJid},
		Status: status,
	})
}

func TestHandleMessageStatus_ReadClearsUnread(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, convo.ID, int32(0)).Return(nil)
	f.repo.MessageRepoMock.On("MarkConversationRead", mock.Anything, convo.ID).Return(nil)

	err := f.svc.handleMessageStatus(context.Background(), inbox, statusEvent(t, convo.ExternalThreadID, model.WireStatusRead))

	require.NoError(t, err)
	published := f.notifier.byEvent(model.RealtimeReadReceipt)
	require.Len(t, published, 1)
	require.Equal(t, convo.ConversationID, published[0].Payload.(model.ReadReceiptPayload).ConversationID)
	require.True(t, f.svc.readOverride.active(convo.ID))
}

func TestHandleMessageStatus_PlayedClearsUnread(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, convo.ID, int32(0)).Return(nil)
	f.repo.MessageRepoMock.On("MarkConversationRead", mock.Anything, convo.ID).Return(nil)

	err := f.svc.handleMessageStatus(context.Background(), inbox, statusEvent(t, convo.ExternalThreadID, model.WireStatusPlayed))

	require.NoError(t, err)
	require.Len(t, f.notifier.byEvent(model.RealtimeReadReceipt), 1)
}

func TestHandleMessageStatus_DeliveryAckIgnored(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.handleMessageStatus(context.Background(), testInbox(),
		statusEvent(t, "628111@s.whatsapp.net", model.WireStatusDeliveryAck))

	require.NoError(t, err)
	f.repo.ConversationRepoMock.AssertNotCalled(t, "FindConversationByThread", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessageStatus_GroupDeliveryAckFromMeCountsAsRead(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()
	convo.ExternalThreadID = "12036304@g.us"
	convo.IsGroup = true

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, convo.ID, int32(0)).Return(nil)
	f.repo.MessageRepoMock.On("MarkConversationRead", mock.Anything, convo.ID).Return(nil)

	event := rawEvent(t, model.EventMessageStatus, model.StatusEventData{
		Key:    model.WireKey{ID: "WAMID-1", RemoteJid: convo.ExternalThreadID, FromMe: true},
		Status: model.WireStatusDeliveryAck,
	})
	err := f.svc.handleMessageStatus(context.Background(), inbox, event)

	require.NoError(t, err)
	require.Len(t, f.notifier.byEvent(model.RealtimeReadReceipt), 1)
}

func TestHandleMessageStatus_GroupDeliveryAckFromOthersIgnored(t *testing.T) {
	f := newServiceFixture(t)

	event := rawEvent(t, model.EventMessageStatus, model.StatusEventData{
		Key:    model.WireKey{ID: "WAMID-1", RemoteJid: "12036304@g.us", FromMe: false},
		Status: model.WireStatusDeliveryAck,
	})
	err := f.svc.handleMessageStatus(context.Background(), testInbox(), event)

	require.NoError(t, err)
	f.repo.ConversationRepoMock.AssertNotCalled(t, "FindConversationByThread", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessageStatus_UnknownConversationIgnored(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, "628999@s.whatsapp.net").
		Return(nil, apperrors.ErrNotFound)

	err := f.svc.handleMessageStatus(context.Background(), inbox,
		statusEvent(t, "628999@s.whatsapp.net", model.WireStatusRead))

	require.NoError(t, err)
	require.Empty(t, f.notifier.published())
}

func TestHandleMessageStatus_MissingRemoteJidIsFatal(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.handleMessageStatus(context.Background(), testInbox(),
		statusEvent(t, "", model.WireStatusRead))

	require.Error(t, err)
	require.True(t, apperrors.IsFatal(err))
}

func TestHandleMessageStatus_SetUnreadErrorIsRetryable(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, convo.ID, int32(0)).
		Return(fmt.Errorf("%w: update failed", apperrors.ErrDatabase))

	err := f.svc.handleMessageStatus(context.Background(), inbox, statusEvent(t, convo.ExternalThreadID, model.WireStatusRead))

	require.Error(t, err)
	require.True(t, apperrors.IsRetryable(err))
}
