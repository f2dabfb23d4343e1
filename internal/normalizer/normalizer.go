// Package normalizer extracts canonical message content from the gateway's
// wire format. The wire shape is a union of content variants, sometimes
// nested inside wrapper envelopes (ephemeral, view-once), and the normalizer
// reduces it to a flat type/text/media triple.
package normalizer

import (
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
)

// UnsupportedText is stored as the content of messages whose variant the
// normalizer does not recognize, so no blank record ever reaches the
// database.
const UnsupportedText = "[Unsupported message]"

// Content is the normalized form of a wire message.
type Content struct {
	Type     string
	Text     string
	MediaURL string
}

// detector recognizes one content variant. Detectors are tried in order;
// the first match wins.
type detector struct {
	name    string
	extract func(*model.WireMessage) (Content, bool)
}

var detectors = []detector{
	{
		name: "conversation",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.Conversation == "" {
				return Content{}, false
			}
			return Content{Type: model.MessageTypeText, Text: m.Conversation}, true
		},
	},
	{
		name: "extended_text",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.ExtendedTextMessage == nil || m.ExtendedTextMessage.Text == "" {
				return Content{}, false
			}
			return Content{Type: model.MessageTypeText, Text: m.ExtendedTextMessage.Text}, true
		},
	},
	{
		name: "buttons_reply",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.ButtonsResponseMessage == nil {
				return Content{}, false
			}
			text := m.ButtonsResponseMessage.SelectedDisplayText
			if text == "" {
				text = m.ButtonsResponseMessage.SelectedButtonID
			}
			return Content{Type: model.MessageTypeText, Text: text}, true
		},
	},
	{
		name: "list_reply",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.ListResponseMessage == nil {
				return Content{}, false
			}
			text := m.ListResponseMessage.Title
			if text == "" && m.ListResponseMessage.SingleSelectReply != nil {
				text = m.ListResponseMessage.SingleSelectReply.SelectedRowID
			}
			return Content{Type: model.MessageTypeText, Text: text}, true
		},
	},
	{
		name: "template_reply",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.TemplateButtonReplyMessage == nil {
				return Content{}, false
			}
			text := m.TemplateButtonReplyMessage.SelectedDisplayText
			if text == "" {
				text = m.TemplateButtonReplyMessage.SelectedID
			}
			return Content{Type: model.MessageTypeText, Text: text}, true
		},
	},
	{
		name: "image",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.ImageMessage == nil {
				return Content{}, false
			}
			return Content{Type: model.MessageTypeImage, Text: m.ImageMessage.Caption, MediaURL: m.ImageMessage.URL}, true
		},
	},
	{
		name: "video",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.VideoMessage == nil {
				return Content{}, false
			}
			return Content{Type: model.MessageTypeVideo, Text: m.VideoMessage.Caption, MediaURL: m.VideoMessage.URL}, true
		},
	},
	{
		name: "audio",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.AudioMessage == nil {
				return Content{}, false
			}
			return Content{Type: model.MessageTypeAudio, MediaURL: m.AudioMessage.URL}, true
		},
	},
	{
		name: "document",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.DocumentMessage == nil {
				return Content{}, false
			}
			text := m.DocumentMessage.Caption
			if text == "" {
				text = m.DocumentMessage.FileName
			}
			return Content{Type: model.MessageTypeDocument, Text: text, MediaURL: m.DocumentMessage.URL}, true
		},
	},
	{
		name: "sticker",
		extract: func(m *model.WireMessage) (Content, bool) {
			if m.StickerMessage == nil {
				return Content{}, false
			}
			return Content{Type: model.MessageTypeSticker, MediaURL: m.StickerMessage.URL}, true
		},
	},
}

// Normalize reduces a wire message to canonical content. Wrapper envelopes
// are unwrapped first; unrecognized variants yield an "unsupported" content
// so the message is still recorded rather than dropped.
func Normalize(msg *model.WireMessage) Content {
	msg = unwrap(msg)
	if msg == nil {
		return Content{Type: model.MessageTypeUnsupported, Text: UnsupportedText}
	}
	for _, d := range detectors {
		if content, ok := d.extract(msg); ok {
			return content
		}
	}
	return Content{Type: model.MessageTypeUnsupported, Text: UnsupportedText}
}

// unwrap peels wrapper envelopes until a leaf variant remains. Depth is
// bounded to guard against pathological nesting in crafted payloads.
func unwrap(msg *model.WireMessage) *model.WireMessage {
	for depth := 0; msg != nil && depth < 5; depth++ {
		switch {
		case msg.EphemeralMessage != nil:
			msg = msg.EphemeralMessage.Message
		case msg.ViewOnceMessage != nil:
			msg = msg.ViewOnceMessage.Message
		case msg.ViewOnceMessageV2 != nil:
			msg = msg.ViewOnceMessageV2.Message
		case msg.DocumentWithCaptionMessage != nil:
			msg = msg.DocumentWithCaptionMessage.Message
		default:
			return msg
		}
	}
	return msg
}
