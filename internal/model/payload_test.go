package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWebhookEnvelope(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		event    string
		instance string
	}{
		{
			name:     "current shape",
			body:     `{"event":"messages.upsert","instance":"inst-a","data":{"key":{"id":"W1"}}}`,
			event:    "messages.upsert",
			instance: "inst-a",
		},
		{
			name:     "legacy type field",
			body:     `{"type":"messages.update","instance":"inst-a","data":{"key":{"id":"W1"},"status":"READ"}}`,
			event:    "messages.update",
			instance: "inst-a",
		},
		{
			name:     "event nested in data",
			body:     `{"instance":"inst-a","data":{"event":"connection.update","state":"open"}}`,
			event:    "connection.update",
			instance: "inst-a",
		},
		{
			name:     "event field wins over type",
			body:     `{"event":"messages.upsert","type":"chats.update","instance":"inst-a","data":{}}`,
			event:    "messages.upsert",
			instance: "inst-a",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			envelope, err := DecodeWebhookEnvelope([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.event, envelope.Event)
			assert.Equal(t, tc.instance, envelope.Instance)
		})
	}
}

func TestDecodeWebhookEnvelope_BareMessageObject(t *testing.T) {
	body := `{"instance":"inst-a","key":{"id":"W1","remoteJid":"628123@s.whatsapp.net"},"message":{"conversation":"hi"}}`

	envelope, err := DecodeWebhookEnvelope([]byte(body))

	require.NoError(t, err)
	assert.Equal(t, EventMessageReceived, envelope.Event)
	assert.Equal(t, "inst-a", envelope.Instance)
	// The whole body is the event data so the message handler sees the key.
	assert.JSONEq(t, body, string(envelope.Data))
}

func TestDecodeWebhookEnvelope_MalformedJSON(t *testing.T) {
	_, err := DecodeWebhookEnvelope([]byte(`{"event":`))
	require.Error(t, err)
}
