package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
)

func TestProcessEvent_RawEventNotFound(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-missing").
		Return(nil, apperrors.ErrNotFound)

	err := f.svc.ProcessEvent(context.Background(), "evt-missing")

	require.Error(t, err)
	require.True(t, apperrors.IsFatal(err))
	f.repo.EventRepoMock.AssertExpectations(t)
}

func TestProcessEvent_RawEventLoadError(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").
		Return(nil, fmt.Errorf("%w: connection refused", apperrors.ErrDatabase))

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.Error(t, err)
	require.True(t, apperrors.IsRetryable(err))
}

func TestProcessEvent_AlreadyProcessed(t *testing.T) {
	f := newServiceFixture(t)
	event := rawEvent(t, model.EventConnectionState, model.ConnectionEventData{State: "open"})
	event.Processed = true
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").Return(event, nil)

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.NoError(t, err)
	f.repo.InboxRepoMock.AssertNotCalled(t, "FindInboxByInstance", mock.Anything, mock.Anything)
	f.repo.EventRepoMock.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything)
}

func TestProcessEvent_UnknownInstance(t *testing.T) {
	f := newServiceFixture(t)
	event := rawEvent(t, model.EventConnectionState, model.ConnectionEventData{State: "open"})
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").Return(event, nil)
	f.repo.InboxRepoMock.On("FindInboxByInstance", mock.Anything, testInstance).
		Return(nil, apperrors.ErrNotFound)
	f.repo.EventRepoMock.On("MarkEventIgnored", mock.Anything, "evt-1",
		"ignored: no inbox registered for instance "+testInstance).Return(nil)

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.NoError(t, err)
	// The ignore marker survives: the row is closed with its reason in one
	// update, not recorded and then overwritten by MarkEventProcessed.
	f.repo.EventRepoMock.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything)
	f.repo.EventRepoMock.AssertNotCalled(t, "RecordEventError", mock.Anything, mock.Anything, mock.Anything)
	f.repo.EventRepoMock.AssertExpectations(t)
}

func TestProcessEvent_UnknownInstanceMarkFailureIsRetryable(t *testing.T) {
	f := newServiceFixture(t)
	event := rawEvent(t, model.EventConnectionState, model.ConnectionEventData{State: "open"})
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").Return(event, nil)
	f.repo.InboxRepoMock.On("FindInboxByInstance", mock.Anything, testInstance).
		Return(nil, apperrors.ErrNotFound)
	f.repo.EventRepoMock.On("MarkEventIgnored", mock.Anything, "evt-1", mock.AnythingOfType("string")).
		Return(fmt.Errorf("%w: timeout", apperrors.ErrDatabase))

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.Error(t, err)
	require.True(t, apperrors.IsRetryable(err))
}

func TestProcessEvent_UnhandledEventType(t *testing.T) {
	f := newServiceFixture(t)
	event := rawEvent(t, "labels.edit", map[string]string{"labelId": "x"})
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").Return(event, nil)
	f.repo.InboxRepoMock.On("FindInboxByInstance", mock.Anything, testInstance).
		Return(testInbox(), nil)
	f.repo.EventRepoMock.On("MarkEventProcessed", mock.Anything, "evt-1").Return(nil)

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.NoError(t, err)
	f.repo.EventRepoMock.AssertExpectations(t)
}

func TestProcessEvent_HandlerDatabaseErrorIsRetryable(t *testing.T) {
	f := newServiceFixture(t)
	event := rawEvent(t, model.EventConnectionState, model.ConnectionEventData{State: "open"})
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").Return(event, nil)
	f.repo.InboxRepoMock.On("FindInboxByInstance", mock.Anything, testInstance).
		Return(testInbox(), nil)
	f.repo.InboxRepoMock.On("UpdateInboxStatus", mock.Anything, "inbox-3", model.InboxStatusConnected).
		Return(false, fmt.Errorf("%w: deadlock", apperrors.ErrDatabase))
	f.repo.EventRepoMock.On("RecordEventError", mock.Anything, "evt-1", mock.AnythingOfType("string")).
		Return(nil)

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.Error(t, err)
	require.True(t, apperrors.IsRetryable(err))
	f.repo.EventRepoMock.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything)
}

func TestProcessEvent_MalformedPayloadIsFatal(t *testing.T) {
	f := newServiceFixture(t)
	event := rawEvent(t, model.EventConnectionState, model.ConnectionEventData{State: "open"})
	event.Payload = []byte(`{"event": "connection.update", "instance": "inst-a", "data": "not-an-object"}`)
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").Return(event, nil)
	f.repo.InboxRepoMock.On("FindInboxByInstance", mock.Anything, testInstance).
		Return(testInbox(), nil)
	f.repo.EventRepoMock.On("RecordEventError", mock.Anything, "evt-1", mock.AnythingOfType("string")).
		Return(nil)

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.Error(t, err)
	require.True(t, apperrors.IsFatal(err))
}

func TestProcessEvent_MarkProcessedFailureIsRetryable(t *testing.T) {
	f := newServiceFixture(t)
	event := rawEvent(t, model.EventConnectionState, model.ConnectionEventData{State: "open"})
	f.repo.EventRepoMock.On("FindRawEventByID", mock.Anything, "evt-1").Return(event, nil)
	f.repo.InboxRepoMock.On("FindInboxByInstance", mock.Anything, testInstance).
		Return(testInbox(), nil)
	f.repo.InboxRepoMock.On("UpdateInboxStatus", mock.Anything, "inbox-3", model.InboxStatusConnected).
		Return(false, nil)
	f.repo.EventRepoMock.On("MarkEventProcessed", mock.Anything, "evt-1").
		Return(fmt.Errorf("%w: timeout", apperrors.ErrDatabase))

	err := f.svc.ProcessEvent(context.Background(), "evt-1")

	require.Error(t, err)
	require.True(t, apperrors.IsRetryable(err))
}

func TestClassifyProcessingError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"already retryable", apperrors.NewRetryable(errors.New("x"), "wrapped"), true},
		{"already fatal", apperrors.NewFatal(errors.New("x"), "wrapped"), false},
		{"database", fmt.Errorf("%w: down", apperrors.ErrDatabase), true},
		{"timeout", fmt.Errorf("%w: slow", apperrors.ErrTimeout), true},
		{"nats", fmt.Errorf("%w: no responders", apperrors.ErrNATS), true},
		{"validation", fmt.Errorf("%w: bad field", apperrors.ErrValidation), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyProcessingError(tc.err)
			require.Error(t, got)
			require.Equal(t, tc.retryable, apperrors.IsRetryable(got))
		})
	}
}
