// Package exchange implements the client side of the Message Exchange
// Service over HTTP and WebSocket.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PabloGalante/aisuite/internal/api"
	"github.com/PabloGalante/aisuite/internal/app/chatsession"
)

const (
	DefaultBaseURL = "http://localhost:8000/api"

	// maxErrorBody caps how much of a failed response is kept in StatusError.
	maxErrorBody = 512
)

// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
var ErrMalformedResponse = errors.New("exchange: malformed response")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exchange: status %d", e.StatusCode)
	}
	return fmt.Sprintf("exchange: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the chat HTTP API. It implements chatsession.Exchanger
// and chatsession.ModelInfoSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client for baseURL, e.g. "http://localhost:8000/api".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// per-exchange deadlines come from the caller's context
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange posts one user message. An empty SessionID is sent as null.
func (c *Client) Exchange(ctx context.Context, req chatsession.ExchangeRequest) (*chatsession.ExchangeResponse, error) {
	body := api.ChatRequest{Message: req.Message}
	if req.SessionID != "" {
		sid := req.SessionID
		body.SessionID = &sid
	}

	var resp api.ChatResponse
	if err := c.do(ctx, http.MethodPost, api.PathMessage, body, &resp); err != nil {
		return nil, err
	}
	return FromChatResponse(&resp), nil
}

// ModelInfo fetches display information about the serving model.
func (c *Client) ModelInfo(ctx context.Context) (chatsession.ModelInfo, error) {
	var resp api.ModelInfoResponse
	if err := c.do(ctx, http.MethodGet, api.PathModelInfo, nil, &resp); err != nil {
		return chatsession.ModelInfo{}, err
	}
	return chatsession.ModelInfo{
		ModelName: resp.ModelInfo.ModelName,
		IsLoaded:  resp.ModelInfo.IsLoaded,
	}, nil
}

func (c *Client) ListSessions(ctx context.Context) (*api.SessionsResponse, error) {
	var resp api.SessionsResponse
	if err := c.do(ctx, http.MethodGet, api.PathSessions, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) History(ctx context.Context, sessionID string) (*api.HistoryResponse, error) {
	var resp api.HistoryResponse
	if err := c.do(ctx, http.MethodGet, api.PathHistory+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	var resp api.DeleteResponse
	return c.do(ctx, http.MethodDelete, api.PathSession+url.PathEscape(sessionID), nil, &resp)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func newStatusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body api.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

// FromChatResponse converts the wire reply into the controller's shape.
func FromChatResponse(r *api.ChatResponse) *chatsession.ExchangeResponse {
	return &chatsession.ExchangeResponse{
		Response:   r.Response,
		SessionID:  r.SessionID,
		Intent:     r.Intent,
		Confidence: r.Confidence,
		Metadata: map[string]any{
			"has_context":    r.Metadata.HasContext,
			"model_used":     r.Metadata.ModelUsed,
			"context_length": r.Metadata.ContextLength,
			"message_count":  r.Metadata.MessageCount,
		},
	}
}
