package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/config"
	clientmock "github.com/daniel-neiva/nexcrm-sub000/internal/jetstream/mock"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// ProcessorMock is a mock of the Processor interface
type ProcessorMock struct {
	mock.Mock
}

func (m *ProcessorMock) ProcessEvent(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func setupTest(t *testing.T) (*clientmock.ClientMock, *ProcessorMock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return new(clientmock.ClientMock), new(ProcessorMock)
}

func TestTriggerConsumer_Setup(t *testing.T) {
	mockClient, mockProcessor := setupTest(t)
	accountID := "acct-setup"
	cfg := config.ConsumerNatsConfig{
		Stream:     "crm_events",
		Consumer:   "crm-event-processor-" + accountID,
		QueueGroup: "crm-event-group-" + accountID,
		Subject:    "v1.crm.events",
		MaxAge:     7,
		MaxDeliver: 5,
	}

	consumer := NewTriggerConsumer(mockClient, mockProcessor, cfg, accountID)

	mockClient.On("SetupStream", mock.Anything, mock.MatchedBy(func(sc *nats.StreamConfig) bool {
		return sc.Name == cfg.Stream &&
			sc.Storage == nats.FileStorage &&
			sc.Retention == nats.LimitsPolicy &&
			sc.MaxAge == 7*24*time.Hour &&
			assert.ElementsMatch(t, []string{"v1.crm.events.*"}, sc.Subjects)
	})).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, cfg.Stream, mock.MatchedBy(func(cc *nats.ConsumerConfig) bool {
		return cc.Durable == cfg.Consumer &&
			cc.DeliverGroup == cfg.QueueGroup &&
			assert.ElementsMatch(t, []string{"v1.crm.events." + accountID}, cc.FilterSubjects) &&
			cc.AckPolicy == nats.AckExplicitPolicy &&
			cc.MaxDeliver == cfg.MaxDeliver &&
			cc.DeliverPolicy == nats.DeliverAllPolicy
	})).Return(nil)

	err := consumer.Setup()

	assert.NoError(t, err)
	assert.Equal(t, "v1.crm.events."+accountID, consumer.filterSubject)
	mockClient.AssertExpectations(t)
}

func TestTriggerConsumer_Setup_StreamError(t *testing.T) {
	mockClient, mockProcessor := setupTest(t)
	cfg := config.ConsumerNatsConfig{Stream: "crm_events", Subject: "v1.crm.events", MaxDeliver: 5}
	consumer := NewTriggerConsumer(mockClient, mockProcessor, cfg, "acct-se")

	expectedErr := errors.New("stream setup failed")
	mockClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(expectedErr)

	err := consumer.Setup()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), expectedErr.Error())
	assert.Contains(t, err.Error(), "failed to setup trigger stream")
	mockClient.AssertExpectations(t)
	mockClient.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestTriggerConsumer_Setup_ConsumerError(t *testing.T) {
	mockClient, mockProcessor := setupTest(t)
	cfg := config.ConsumerNatsConfig{Stream: "crm_events", Consumer: "crm-con-ce", Subject: "v1.crm.events", MaxDeliver: 5}
	consumer := NewTriggerConsumer(mockClient, mockProcessor, cfg, "acct-ce")

	expectedErr := errors.New("consumer setup failed")
	mockClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, cfg.Stream, mock.AnythingOfType("*nats.ConsumerConfig")).Return(expectedErr)

	err := consumer.Setup()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), expectedErr.Error())
	assert.Contains(t, err.Error(), "failed to setup trigger consumer")
	mockClient.AssertExpectations(t)
}

func TestTriggerConsumer_Start(t *testing.T) {
	mockClient, mockProcessor := setupTest(t)
	accountID := "acct-start"
	cfg := config.ConsumerNatsConfig{
		Stream:     "crm_events",
		Consumer:   "crm-event-processor-" + accountID,
		QueueGroup: "crm-event-group-" + accountID,
		Subject:    "v1.crm.events",
		MaxDeliver: 5,
	}
	consumer := NewTriggerConsumer(mockClient, mockProcessor, cfg, accountID)
	consumer.filterSubject = "v1.crm.events." + accountID

	mockSubscription := clientmock.MockSubscription()
	mockClient.On("SubscribePush", consumer.filterSubject, cfg.Consumer, cfg.QueueGroup, cfg.Stream, mock.AnythingOfType("nats.MsgHandler")).Return(mockSubscription, nil)

	err := consumer.Start()

	assert.NoError(t, err)
	assert.Equal(t, mockSubscription, consumer.sub)
	mockClient.AssertExpectations(t)
}

func TestTriggerConsumer_Start_Error(t *testing.T) {
	mockClient, mockProcessor := setupTest(t)
	cfg := config.ConsumerNatsConfig{
		Stream:       "crm_events",
		Consumer:     "crm-con-start-err",
		QueueGroup:   "crm-grp-start-err",
		Subject:      "v1.crm.events",
		MaxDeliver:   5,
		NakBaseDelay: time.Second,
		NakMaxDelay:  10 * time.Second,
	}
	consumer := NewTriggerConsumer(mockClient, mockProcessor, cfg, "acct-start-err")

	expectedErr := errors.New("subscribe push failed")
	mockClient.On("SubscribePush", consumer.filterSubject, cfg.Consumer, cfg.QueueGroup, cfg.Stream, mock.AnythingOfType("nats.MsgHandler")).Return((*nats.Subscription)(nil), expectedErr)

	err := consumer.Start()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), expectedErr.Error())
	assert.Contains(t, err.Error(), "failed to subscribe trigger consumer")
	assert.Nil(t, consumer.sub)
	mockClient.AssertExpectations(t)
}

func TestTriggerConsumer_Stop(t *testing.T) {
	mockClient, mockProcessor := setupTest(t)
	cfg := config.ConsumerNatsConfig{Consumer: "crm-con-stop", MaxDeliver: 5}
	consumer := NewTriggerConsumer(mockClient, mockProcessor, cfg, "acct-stop")
	consumer.sub = clientmock.MockSubscription()

	ctx := consumer.ctx
	consumer.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "Context was not canceled within timeout")
	}
	mockClient.AssertExpectations(t)
}

func TestDetermineAckNakAction(t *testing.T) {
	baseDelay := 1 * time.Second
	maxDelay := 16 * time.Second
	maxDeliver := 5

	tests := []struct {
		name           string
		processingErr  error
		numDelivered   uint64
		expectedAction AckNakAction
		expectedDelay  time.Duration
	}{
		{
			name:           "success",
			processingErr:  nil,
			numDelivered:   1,
			expectedAction: ActionAck,
			expectedDelay:  0,
		},
		{
			name:           "retryable error, first attempt",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   1,
			expectedAction: ActionNakDelay,
			expectedDelay:  1 * time.Second, // base * 2^0
		},
		{
			name:           "retryable error, second attempt",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   2,
			expectedAction: ActionNakDelay,
			expectedDelay:  2 * time.Second, // base * 2^1
		},
		{
			name:           "retryable error, fourth attempt",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   4,
			expectedAction: ActionNakDelay,
			expectedDelay:  8 * time.Second, // base * 2^3
		},
		{
			name:           "retryable error, retries exhausted",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   5,
			expectedAction: ActionAckDead,
			expectedDelay:  0,
		},
		{
			name:           "fatal error, first attempt",
			processingErr:  apperrors.NewFatal(errors.New("fatal"), "fatal"),
			numDelivered:   1,
			expectedAction: ActionAckDead,
			expectedDelay:  0,
		},
		{
			name:           "plain error treated as fatal",
			processingErr:  errors.New("some other error"),
			numDelivered:   1,
			expectedAction: ActionAckDead,
			expectedDelay:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := &nats.MsgMetadata{NumDelivered: tt.numDelivered}
			action, delay := determineAckNakAction(tt.processingErr, metadata, maxDeliver, baseDelay, maxDelay)
			assert.Equal(t, tt.expectedAction, action)
			assert.Equal(t, tt.expectedDelay, delay)
		})
	}
}

func TestTriggerPublisher_PublishTrigger(t *testing.T) {
	mockClient, _ := setupTest(t)
	pub := NewTriggerPublisher(mockClient, "v1.crm.events", "acct-pub")

	trigger := EventTrigger{EventID: "evt-123", EventType: "messages.upsert", Instance: "inst-a"}
	mockClient.On("Publish", "v1.crm.events.acct-pub", mock.Anything, map[string]string{"Nats-Msg-Id": "evt-123"}).Return(nil)

	err := pub.PublishTrigger(context.Background(), trigger)

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestTriggerPublisher_PublishTrigger_Error(t *testing.T) {
	mockClient, _ := setupTest(t)
	pub := NewTriggerPublisher(mockClient, "v1.crm.events", "acct-pub-err")

	mockClient.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("nats down"))

	err := pub.PublishTrigger(context.Background(), EventTrigger{EventID: "evt-err"})

	assert.Error(t, err)
	assert.True(t, apperrors.IsNATSError(err))
	mockClient.AssertExpectations(t)
}
