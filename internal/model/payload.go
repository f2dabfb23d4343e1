package model

import (
	"encoding/json"
	"strings"
)

// JID suffixes used by the WhatsApp gateway.
const (
	JIDSuffixUser  = "@s.whatsapp.net"
	JIDSuffixGroup = "@g.us"
	JIDSuffixLID   = "@lid"
)

// IsGroupJID reports whether jid addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, JIDSuffixGroup)
}

// IsLIDJID reports whether jid is an anonymized linked-device identifier.
func IsLIDJID(jid string) bool {
	return strings.HasSuffix(jid, JIDSuffixLID)
}

// BareJID strips any known suffix from jid, leaving the phone number or LID.
func BareJID(jid string) string {
	for _, suffix := range []string{JIDSuffixUser, JIDSuffixGroup, JIDSuffixLID} {
		if strings.HasSuffix(jid, suffix) {
			return strings.TrimSuffix(jid, suffix)
		}
	}
	return jid
}

// --- Webhook envelope --- //

// WebhookEnvelope is the outer structure of every gateway webhook delivery.
// Data is kept raw; each event type decodes it into its own shape.
type WebhookEnvelope struct {
	Event    string          `json:"event" validate:"required"`
	Instance string          `json:"instance" validate:"required"`
	Data     json.RawMessage `json:"data" validate:"required"`
	Sender   string          `json:"sender,omitempty"`
	DateTime string          `json:"date_time,omitempty"`
}

// DecodeWebhookEnvelope parses a webhook body into the canonical envelope.
// Gateway versions have shipped several envelope shapes over time: the event
// name under "event" or "type", nested inside "data", or no envelope at all
// with the bare message object as the body. All of them decode here;
// returning an error means the body is not valid JSON.
func DecodeWebhookEnvelope(body []byte) (*WebhookEnvelope, error) {
	var raw struct {
		Event    string          `json:"event"`
		Type     string          `json:"type"`
		Instance string          `json:"instance"`
		Data     json.RawMessage `json:"data"`
		Sender   string          `json:"sender"`
		DateTime string          `json:"date_time"`
		Key      json.RawMessage `json:"key"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	envelope := &WebhookEnvelope{
		Event:    raw.Event,
		Instance: raw.Instance,
		Data:     raw.Data,
		Sender:   raw.Sender,
		DateTime: raw.DateTime,
	}
	if envelope.Event == "" {
		envelope.Event = raw.Type
	}
	if envelope.Event == "" && len(raw.Data) > 0 {
		var nested struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(raw.Data, &nested); err == nil {
			envelope.Event = nested.Event
		}
	}
	// The oldest gateway posted the message object itself, recognizable by
	// its wire key. The whole body becomes the event data.
	if envelope.Event == "" && len(raw.Key) > 0 {
		envelope.Event = EventMessageReceived
		envelope.Data = json.RawMessage(body)
	}
	return envelope, nil
}

// WireKey identifies a message on the wire.
type WireKey struct {
	ID        string `json:"id,omitempty"`
	RemoteJid string `json:"remoteJid,omitempty"`
	FromMe    bool   `json:"fromMe,omitempty"`
	// Participant is the sender JID inside a group chat.
	Participant string `json:"participant,omitempty"`
	// SenderPn is the real phone JID the gateway attaches when RemoteJid
	// is an anonymized LID.
	SenderPn string `json:"senderPn,omitempty"`
}

// --- messages.upsert --- //

// MessageEventData is the payload of a messages.upsert event.
type MessageEventData struct {
	Key              WireKey      `json:"key" validate:"required"`
	PushName         string       `json:"pushName,omitempty"`
	Message          *WireMessage `json:"message,omitempty"`
	MessageTimestamp int64        `json:"messageTimestamp,omitempty"`
}

// WireMessage is the union of message content variants the gateway emits.
// Exactly one variant is normally set; wrapper variants nest another
// WireMessage one level down.
type WireMessage struct {
	Conversation        string               `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaMessage        `json:"imageMessage,omitempty"`
	VideoMessage        *MediaMessage        `json:"videoMessage,omitempty"`
	AudioMessage        *MediaMessage        `json:"audioMessage,omitempty"`
	DocumentMessage     *DocumentMessage     `json:"documentMessage,omitempty"`
	StickerMessage      *MediaMessage        `json:"stickerMessage,omitempty"`

	ButtonsResponseMessage     *ButtonsResponseMessage     `json:"buttonsResponseMessage,omitempty"`
	ListResponseMessage        *ListResponseMessage        `json:"listResponseMessage,omitempty"`
	TemplateButtonReplyMessage *TemplateButtonReplyMessage `json:"templateButtonReplyMessage,omitempty"`

	EphemeralMessage           *WrappedMessage `json:"ephemeralMessage,omitempty"`
	ViewOnceMessage            *WrappedMessage `json:"viewOnceMessage,omitempty"`
	ViewOnceMessageV2          *WrappedMessage `json:"viewOnceMessageV2,omitempty"`
	DocumentWithCaptionMessage *WrappedMessage `json:"documentWithCaptionMessage,omitempty"`
}

// WrappedMessage nests a WireMessage inside wrapper variants such as
// ephemeral or view-once envelopes.
type WrappedMessage struct {
	Message *WireMessage `json:"message,omitempty"`
}

// ExtendedTextMessage carries formatted or link-preview text.
type ExtendedTextMessage struct {
	Text string `json:"text,omitempty"`
}

// MediaMessage is the shared shape of image, video, audio and sticker content.
type MediaMessage struct {
	URL      string `json:"url,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// ButtonsResponseMessage is the contact's reply to an interactive button
// prompt.
type ButtonsResponseMessage struct {
	SelectedButtonID    string `json:"selectedButtonId,omitempty"`
	SelectedDisplayText string `json:"selectedDisplayText,omitempty"`
}

// ListResponseMessage is the contact's reply to an interactive list prompt.
type ListResponseMessage struct {
	Title             string             `json:"title,omitempty"`
	SingleSelectReply *SingleSelectReply `json:"singleSelectReply,omitempty"`
}

// SingleSelectReply identifies the chosen list row.
type SingleSelectReply struct {
	SelectedRowID string `json:"selectedRowId,omitempty"`
}

// TemplateButtonReplyMessage is the contact's reply to a template button.
type TemplateButtonReplyMessage struct {
	SelectedID          string `json:"selectedId,omitempty"`
	SelectedDisplayText string `json:"selectedDisplayText,omitempty"`
}

// DocumentMessage carries file attachments.
type DocumentMessage struct {
	URL      string `json:"url,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// --- messages.update --- //

// Wire status values carried by messages.update events.
const (
	WireStatusDeliveryAck = "DELIVERY_ACK"
	WireStatusRead        = "READ"
	WireStatusPlayed      = "PLAYED"
)

// StatusEventData is the payload of a messages.update event.
type StatusEventData struct {
	Key    WireKey `json:"key" validate:"required"`
	Status string  `json:"status,omitempty"`
}

// --- chats.update --- //

// ChatEventData is the payload of a chats.update event. UnreadCount is a
// pointer so an absent field can be told apart from an explicit zero.
type ChatEventData struct {
	RemoteJid   string `json:"remoteJid" validate:"required"`
	Name        string `json:"name,omitempty"`
	UnreadCount *int32 `json:"unreadCount,omitempty"`
}

// --- connection.update --- //

// Gateway connection states.
const (
	WireConnectionOpen       = "open"
	WireConnectionClose      = "close"
	WireConnectionConnecting = "connecting"
)

// ConnectionEventData is the payload of a connection.update event.
type ConnectionEventData struct {
	State      string `json:"state" validate:"required"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// InboxStatusFromWire maps a gateway connection state onto an inbox status.
func InboxStatusFromWire(state string) string {
	switch state {
	case WireConnectionOpen:
		return InboxStatusConnected
	case WireConnectionConnecting:
		return InboxStatusConnecting
	default:
		return InboxStatusDisconnected
	}
}
