// Package gateway is the HTTP client for the WhatsApp gateway that fronts
// the actual WhatsApp connection. All calls are account-agnostic: the
// gateway scopes everything by instance name.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// Chat is one thread as reported by the gateway.
type Chat struct {
	RemoteJid   string `json:"remoteJid"`
	Name        string `json:"name,omitempty"`
	UnreadCount int32  `json:"unreadCount"`
}

// MessageRef identifies a message for read receipts.
type MessageRef struct {
	ID        string `json:"id"`
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// SendResult is the gateway's acknowledgment of an outbound message.
type SendResult struct {
	MessageID string
	Timestamp int64
}

// Gateway is the outbound surface used by the processing layer. Implemented
// by Client; faked in tests.
type Gateway interface {
	SendText(ctx context.Context, instance, remoteJid, text string) (*SendResult, error)
	GetProfilePicture(ctx context.Context, instance, remoteJid string) (string, error)
	MarkRead(ctx context.Context, instance string, refs []MessageRef) error
	GetChats(ctx context.Context, instance string) ([]Chat, error)
	ConnectionState(ctx context.Context, instance string) (string, error)
}

// Client talks to the gateway's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do issues one JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path, operation string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal gateway request: %w", apperrors.ErrBadRequest, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	startTime := utils.Now()
	resp, err := c.httpClient.Do(req)
	observer.ObserveOutboundCallDuration("gateway", operation, time.Since(startTime), err)
	if err != nil {
		return fmt.Errorf("%w: gateway request failed: %w", apperrors.ErrTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: gateway returned 404 for %s", apperrors.ErrNotFound, path)
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.FromContext(ctx).Warn("Gateway returned error status",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("body", utils.TruncateString(string(respBody), 500)),
		)
		return fmt.Errorf("%w: gateway status %d on %s", apperrors.ErrBadRequest, resp.StatusCode, operation)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}

// SendText sends a text message to a thread.
func (c *Client) SendText(ctx context.Context, instance, remoteJid, text string) (*SendResult, error) {
	payload := map[string]interface{}{
		"number": remoteJid,
		"text":   text,
	}
	var parsed struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		MessageTimestamp int64 `json:"messageTimestamp"`
	}
	if err := c.do(ctx, http.MethodPost, "/message/sendText/"+instance, "send_text", payload, &parsed); err != nil {
		return nil, err
	}
	return &SendResult{MessageID: parsed.Key.ID, Timestamp: parsed.MessageTimestamp}, nil
}

// GetProfilePicture fetches the avatar URL of a contact, empty when the
// contact has none or hides it.
func (c *Client) GetProfilePicture(ctx context.Context, instance, remoteJid string) (string, error) {
	payload := map[string]interface{}{"number": remoteJid}
	var parsed struct {
		ProfilePictureURL string `json:"profilePictureUrl"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/fetchProfilePictureUrl/"+instance, "get_profile_picture", payload, &parsed); err != nil {
		return "", err
	}
	return parsed.ProfilePictureURL, nil
}

// MarkRead reports messages as read back to WhatsApp.
func (c *Client) MarkRead(ctx context.Context, instance string, refs []MessageRef) error {
	if len(refs) == 0 {
		return nil
	}
	payload := map[string]interface{}{"readMessages": refs}
	return c.do(ctx, http.MethodPost, "/chat/markMessageAsRead/"+instance, "mark_read", payload, nil)
}

// GetChats lists the gateway's view of all threads, used as a fallback when
// a chat metadata event arrives without an unread count.
func (c *Client) GetChats(ctx context.Context, instance string) ([]Chat, error) {
	var chats []Chat
	if err := c.do(ctx, http.MethodPost, "/chat/findChats/"+instance, "get_chats", map[string]interface{}{}, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// ConnectionState returns the gateway's connection state for an instance.
func (c *Client) ConnectionState(ctx context.Context, instance string) (string, error) {
	var parsed struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := c.do(ctx, http.MethodGet, "/instance/connectionState/"+instance, "connection_state", nil, &parsed); err != nil {
		return "", err
	}
	return parsed.Instance.State, nil
}
