// Package llm is a minimal client for OpenAI-compatible chat completion
// endpoints. The usecase layer builds prompts; this package only moves them
// over the wire.
package llm

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

// Chat roles on the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer generates a chat completion. Implemented by Client; faked in tests.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message, user string) (string, error)
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewClient creates an LLM client. baseURL defaults to the OpenAI API.
func NewClient(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the system prompt, prior turns and the new user message and
// returns the assistant text.
func (c *Client) Complete(ctx context.Context, system string, history []Message, user string) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, history...)
	if user != "" {
		messages = append(messages, Message{Role: RoleUser, Content: user})
	}

	body, err := json.Marshal(completionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal completion request: %w", apperrors.ErrBadRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	startTime := utils.Now()
	resp, err := c.httpClient.Do(req)
	observer.ObserveOutboundCallDuration("llm", "complete", time.Since(startTime), err)
	if err != nil {
		return "", fmt.Errorf("%w: completion request failed: %w", apperrors.ErrTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.FromContext(ctx).Warn("LLM provider returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", utils.TruncateString(string(respBody), 500)),
		)
		return "", fmt.Errorf("%w: llm provider status %d: %s", apperrors.ErrBadRequest, resp.StatusCode, utils.TruncateString(string(respBody), 200))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: llm provider error: %s", apperrors.ErrBadRequest, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion response", apperrors.ErrNotFound)
	}

	out := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("%w: completion contained no text", apperrors.ErrNotFound)
	}
	return out, nil
}
