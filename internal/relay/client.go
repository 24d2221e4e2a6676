// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay turns an ordered conversation history into one
// assistant reply by calling an OpenAI-compatible chat completions
// endpoint. One request, one buffered response, no streaming.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jeranaias/quill-tui/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds the whole exchange.
	DefaultTimeout = 60 * time.Second

	// DefaultTemperature is used when the caller does not set one.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is used when the caller does not set one.
	DefaultMaxTokens = 2000

	// maxErrorBody caps how much of an upstream error body is kept.
	maxErrorBody = 2048
)

// =============================================================================
// TYPES
// =============================================================================

// Turn is one history entry handed to the relay. Roles are narrowed on
// the wire: anything that is not assistant is sent as user.
type Turn struct {
	Role    model.Role
	Content string
}

// Params tunes a single completion. Zero values fall back to the
// client defaults; Temperature is a pointer so an explicit 0 survives.
type Params struct {
	Model        string
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
}

// Reply is the first choice extracted from the upstream response.
type Reply struct {
	Content string
	Model   string
}

// Client calls one upstream. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// New creates a relay client for baseURL (no trailing slash needed).
// model is the default used when Params.Model is empty. apiKey may be
// empty for unauthenticated upstreams.
func New(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// =============================================================================
// WIRE SHAPES
// =============================================================================

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message *wireMessage `json:"message"`
	} `json:"choices"`
}

// =============================================================================
// COMPLETE
// =============================================================================

// Complete sends the full history upstream and returns the assistant's
// reply. A non-empty SystemPrompt is prepended as a system turn; that
// is the only transformation besides role narrowing. All failures come
// back as *RelayError.
func (c *Client) Complete(ctx context.Context, history []Turn, p Params) (*Reply, error) {
	req := wireRequest{
		Model:       p.Model,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if p.Temperature != nil {
		req.Temperature = *p.Temperature
	}
	if p.MaxTokens > 0 {
		req.MaxTokens = p.MaxTokens
	}

	if p.SystemPrompt != "" {
		req.Messages = append(req.Messages, wireMessage{
			Role:    string(model.RoleSystem),
			Content: p.SystemPrompt,
		})
	}
	for _, turn := range history {
		req.Messages = append(req.Messages, wireMessage{
			Role:    string(turn.Role.Narrow()),
			Content: turn.Content,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &RelayError{Kind: KindMalformed, Message: "encoding request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &RelayError{Kind: KindTransport, Message: "building request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, &RelayError{Kind: KindTimeout, Message: "upstream did not answer in time", Cause: err}
		}
		return nil, &RelayError{Kind: KindTransport, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RelayError{
			Kind:       KindUpstream,
			Message:    upstreamMessage(resp.StatusCode, raw),
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &RelayError{Kind: KindMalformed, Message: "decoding response", Cause: err}
	}
	// An empty-string reply is a valid shape and passes through; only a
	// missing choice or message object is malformed.
	if len(wire.Choices) == 0 || wire.Choices[0].Message == nil {
		return nil, &RelayError{Kind: KindMalformed, Message: "response carried no completion"}
	}

	return &Reply{
		Content: wire.Choices[0].Message.Content,
		Model:   wire.Model,
	}, nil
}

// isClientTimeout catches net/http's own deadline errors, which do not
// unwrap to context.DeadlineExceeded on older transports.
func isClientTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// upstreamMessage extracts {"error": {...}} detail when the upstream
// sent one, falling back to the bare status.
func upstreamMessage(status int, body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("upstream returned status %d", status)
}
