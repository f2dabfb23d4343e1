package webhook

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/daniel-neiva/nexcrm-sub000/internal/ingestion"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	storagemock "github.com/daniel-neiva/nexcrm-sub000/internal/storage/mock"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

const (
	testSecret  = "hook-secret"
	testAccount = "acct_test"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) PublishTrigger(ctx context.Context, trigger ingestion.EventTrigger) error {
	args := m.Called(ctx, trigger)
	return args.Error(0)
}

func newTestRouter(t *testing.T, events *storagemock.EventRepoMock, publisher *publisherMock) *gin.Engine {
	logger.Log = zaptest.NewLogger(t).Named("test")
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler := NewHandler(testSecret, testAccount, events, publisher)
	engine.POST("/webhook", handler.HandleWebhook)
	return engine
}

func postWebhook(router *gin.Engine, body string, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("apikey", secret)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleWebhook_Accepted(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	body := `{"event":"messages.upsert","instance":"inst-a","data":{"key":{"id":"WAMID-1","remoteJid":"628123@s.whatsapp.net"},"message":{"conversation":"hi"}}}`

	var stored *model.RawEvent
	events.On("InsertRawEvent", mock.Anything, mock.AnythingOfType("*model.RawEvent")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.RawEvent) }).
		Return(true, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.MatchedBy(func(tr ingestion.EventTrigger) bool {
		return tr.EventType == model.EventMessageReceived && tr.Instance == "inst-a" && tr.EventID != ""
	})).Return(nil)

	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	require.NotNil(t, stored)
	assert.Equal(t, "inst-a", stored.Instance)
	assert.Equal(t, model.EventMessageReceived, stored.EventType)
	assert.Equal(t, "inst-a:messages.upsert:WAMID-1", stored.EventKey)
	assert.NotEmpty(t, stored.ID)
	assert.JSONEq(t, body, string(stored.Payload))
	events.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestHandleWebhook_TokenQueryParam(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	events.On("InsertRawEvent", mock.Anything, mock.Anything).Return(true, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.Anything).Return(nil)

	body := `{"event":"connection.update","instance":"inst-a","data":{"state":"open"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook?token="+testSecret, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	events.AssertExpectations(t)
}

func TestHandleWebhook_Unauthorized(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	w := postWebhook(router, `{"event":"messages.upsert","instance":"i","data":{}}`, "wrong-secret")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	events.AssertNotCalled(t, "InsertRawEvent", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "PublishTrigger", mock.Anything, mock.Anything)
}

func TestHandleWebhook_MissingCredential(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	w := postWebhook(router, `{"event":"messages.upsert","instance":"i","data":{}}`, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhook_MalformedJSON(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	w := postWebhook(router, `{"event": "messages.upsert",`, testSecret)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	events.AssertNotCalled(t, "InsertRawEvent", mock.Anything, mock.Anything)
}

func TestHandleWebhook_MissingEnvelopeFields(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	// no instance
	w := postWebhook(router, `{"event":"messages.upsert","data":{"key":{"id":"x"}}}`, testSecret)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "instance")
	events.AssertNotCalled(t, "InsertRawEvent", mock.Anything, mock.Anything)
}

func TestHandleWebhook_TypeFieldEnvelope(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	var stored *model.RawEvent
	events.On("InsertRawEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.RawEvent) }).
		Return(true, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.Anything).Return(nil)

	// Older gateway versions send the event name under "type".
	body := `{"type":"messages.upsert","instance":"inst-a","data":{"key":{"id":"WAMID-2"},"message":{"conversation":"hi"}}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stored)
	assert.Equal(t, model.EventMessageReceived, stored.EventType)
	assert.Equal(t, "inst-a:messages.upsert:WAMID-2", stored.EventKey)
}

func TestHandleWebhook_NestedEventEnvelope(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	var stored *model.RawEvent
	events.On("InsertRawEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.RawEvent) }).
		Return(true, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.Anything).Return(nil)

	// Some deliveries carry the event name inside data instead of the top
	// level.
	body := `{"instance":"inst-a","data":{"event":"connection.update","state":"open"}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stored)
	assert.Equal(t, model.EventConnectionState, stored.EventType)
}

func TestHandleWebhook_BareMessageObject(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	var stored *model.RawEvent
	events.On("InsertRawEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.RawEvent) }).
		Return(true, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.MatchedBy(func(tr ingestion.EventTrigger) bool {
		return tr.EventType == model.EventMessageReceived && tr.Instance == "inst-a"
	})).Return(nil)

	// A bare message object with no envelope at all is treated as a
	// messages.upsert whose data is the whole body.
	body := `{"instance":"inst-a","key":{"id":"WAMID-3","remoteJid":"628123@s.whatsapp.net"},"message":{"conversation":"hi"}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stored)
	assert.Equal(t, model.EventMessageReceived, stored.EventType)
	assert.Equal(t, "inst-a:messages.upsert:WAMID-3", stored.EventKey)
	publisher.AssertExpectations(t)
}

func TestHandleWebhook_DuplicateOfProcessedEvent(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	events.On("InsertRawEvent", mock.Anything, mock.Anything).Return(false, nil)
	events.On("FindRawEventByKey", mock.Anything, "inst-a:messages.upsert:WAMID-1").
		Return(&model.RawEvent{ID: "evt-stored", EventType: model.EventMessageReceived, Instance: "inst-a", Processed: true}, nil)

	body := `{"event":"messages.upsert","instance":"inst-a","data":{"key":{"id":"WAMID-1"}}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
	publisher.AssertNotCalled(t, "PublishTrigger", mock.Anything, mock.Anything)
}

func TestHandleWebhook_DuplicateOfPendingEventRepublishes(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	// First delivery stored the row but its trigger never reached the
	// stream; the retry must queue the stored row again.
	events.On("InsertRawEvent", mock.Anything, mock.Anything).Return(false, nil)
	events.On("FindRawEventByKey", mock.Anything, "inst-a:messages.upsert:WAMID-1").
		Return(&model.RawEvent{ID: "evt-stored", EventType: model.EventMessageReceived, Instance: "inst-a"}, nil)
	publisher.On("PublishTrigger", mock.Anything, ingestion.EventTrigger{
		EventID:   "evt-stored",
		EventType: model.EventMessageReceived,
		Instance:  "inst-a",
	}).Return(nil)

	body := `{"event":"messages.upsert","instance":"inst-a","data":{"key":{"id":"WAMID-1"}}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
	publisher.AssertExpectations(t)
}

func TestHandleWebhook_DuplicateRepublishFailure(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	events.On("InsertRawEvent", mock.Anything, mock.Anything).Return(false, nil)
	events.On("FindRawEventByKey", mock.Anything, mock.AnythingOfType("string")).
		Return(&model.RawEvent{ID: "evt-stored", EventType: model.EventMessageReceived, Instance: "inst-a"}, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	body := `{"event":"messages.upsert","instance":"inst-a","data":{"key":{"id":"WAMID-1"}}}`
	w := postWebhook(router, body, testSecret)

	// The gateway keeps retrying until the trigger is queued.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleWebhook_StorageError(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	events.On("InsertRawEvent", mock.Anything, mock.Anything).Return(false, errors.New("db down"))

	body := `{"event":"messages.upsert","instance":"inst-a","data":{"key":{"id":"WAMID-1"}}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	publisher.AssertNotCalled(t, "PublishTrigger", mock.Anything, mock.Anything)
}

func TestHandleWebhook_PublishError(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	events.On("InsertRawEvent", mock.Anything, mock.Anything).Return(true, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	body := `{"event":"messages.upsert","instance":"inst-a","data":{"key":{"id":"WAMID-1"}}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleWebhook_UnknownEventTypeStillStored(t *testing.T) {
	events := new(storagemock.EventRepoMock)
	publisher := new(publisherMock)
	router := newTestRouter(t, events, publisher)

	var stored *model.RawEvent
	events.On("InsertRawEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.RawEvent) }).
		Return(true, nil)
	publisher.On("PublishTrigger", mock.Anything, mock.Anything).Return(nil)

	body := `{"event":"labels.association","instance":"inst-a","data":{"labelId":"7"}}`
	w := postWebhook(router, body, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stored)
	assert.Equal(t, "labels.association", stored.EventType)
}

func TestEventKey(t *testing.T) {
	withKey := []byte(`{"key":{"id":"WAMID-9"}}`)
	assert.Equal(t, "inst:messages.upsert:WAMID-9", eventKey("inst", "messages.upsert", withKey, withKey))

	// keyless payloads hash the full body, so identical bodies collide and
	// distinct bodies do not
	bodyA := []byte(`{"state":"open"}`)
	bodyB := []byte(`{"state":"close"}`)
	keyA := eventKey("inst", "connection.update", bodyA, bodyA)
	keyA2 := eventKey("inst", "connection.update", bodyA, bodyA)
	keyB := eventKey("inst", "connection.update", bodyB, bodyB)
	assert.Equal(t, keyA, keyA2)
	assert.NotEqual(t, keyA, keyB)
}
