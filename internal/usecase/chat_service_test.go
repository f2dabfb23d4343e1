package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/gateway"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
)

func chatEvent(t *testing.T, remoteJid string, unread *int32) *model.RawEvent {
	return rawEvent(t, model.EventChatMetadata, model.ChatEventData{
		RemoteJid:   remoteJid,
		UnreadCount: unread,
	})
}

func int32Ptr(v int32) *int32 { return &v }

func TestHandleChatMetadata_SyncsUnreadCount(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, convo.ID, int32(5)).Return(nil)

	err := f.svc.handleChatMetadata(context.Background(), inbox, chatEvent(t, convo.ExternalThreadID, int32Ptr(5)))

	require.NoError(t, err)
	published := f.notifier.byEvent(model.RealtimeConversationUpdate)
	require.Len(t, published, 1)
	payload := published[0].Payload.(model.ConversationUpdatePayload)
	require.Equal(t, int32(5), payload.UnreadCount)
}

func TestHandleChatMetadata_ZeroCountMarksRead(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, convo.ID, int32(0)).Return(nil)
	f.repo.MessageRepoMock.On("MarkConversationRead", mock.Anything, convo.ID).Return(nil)

	err := f.svc.handleChatMetadata(context.Background(), inbox, chatEvent(t, convo.ExternalThreadID, int32Ptr(0)))

	require.NoError(t, err)
	require.Len(t, f.notifier.byEvent(model.RealtimeReadReceipt), 1)
}

func TestHandleChatMetadata_SuppressedAfterRecentRead(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()
	f.svc.readOverride.markRead(convo.ID)

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)

	err := f.svc.handleChatMetadata(context.Background(), inbox, chatEvent(t, convo.ExternalThreadID, int32Ptr(3)))

	require.NoError(t, err)
	f.repo.ConversationRepoMock.AssertNotCalled(t, "SetUnread", mock.Anything, mock.Anything, mock.Anything)
	require.Empty(t, f.notifier.published())
}

func TestHandleChatMetadata_UnknownConversationIgnored(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, "628999@s.whatsapp.net").
		Return(nil, apperrors.ErrNotFound)

	err := f.svc.handleChatMetadata(context.Background(), inbox, chatEvent(t, "628999@s.whatsapp.net", int32Ptr(2)))

	require.NoError(t, err)
	f.repo.ConversationRepoMock.AssertNotCalled(t, "SetUnread", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleChatMetadata_MissingCountFallsBackToChatList(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()
	other := testConversation()
	other.ID = 12
	other.ConversationID = "conv-12"
	other.ExternalThreadID = "628333@s.whatsapp.net"

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, other.ExternalThreadID).
		Return(other, nil)
	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, "628444@s.whatsapp.net").
		Return(nil, apperrors.ErrNotFound)
	f.gateway.On("GetChats", mock.Anything, testInstance).Return([]gateway.Chat{
		{RemoteJid: convo.ExternalThreadID, UnreadCount: 2},
		{RemoteJid: other.ExternalThreadID, UnreadCount: 7},
		{RemoteJid: "628444@s.whatsapp.net", UnreadCount: 1},
	}, nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, convo.ID, int32(2)).Return(nil)
	f.repo.ConversationRepoMock.On("SetUnread", mock.Anything, other.ID, int32(7)).Return(nil)

	err := f.svc.handleChatMetadata(context.Background(), inbox, chatEvent(t, convo.ExternalThreadID, nil))

	require.NoError(t, err)
	require.Len(t, f.notifier.byEvent(model.RealtimeConversationUpdate), 2)
	f.repo.ConversationRepoMock.AssertExpectations(t)
}

func TestHandleChatMetadata_ChatListFailureSwallowed(t *testing.T) {
	f := newServiceFixture(t)
	inbox := testInbox()
	convo := testConversation()

	f.repo.ConversationRepoMock.On("FindConversationByThread", mock.Anything, inbox.ID, convo.ExternalThreadID).
		Return(convo, nil)
	f.gateway.On("GetChats", mock.Anything, testInstance).Return(nil, apperrors.ErrTimeout)

	err := f.svc.handleChatMetadata(context.Background(), inbox, chatEvent(t, convo.ExternalThreadID, nil))

	require.NoError(t, err)
	require.Empty(t, f.notifier.published())
}
