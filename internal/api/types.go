// Package api holds the JSON contract of the chat endpoints, shared by the
// HTTP server and the client adapters.
package api

import "time"

const (
	PathMessage   = "/chat/message"
	PathSessions  = "/chat/sessions"
	PathHistory   = "/chat/history/"
	PathSession   = "/chat/session/"
	PathModelInfo = "/chat/model-info"
	PathWebSocket = "/chat/ws"
)

// ChatRequest is the body of POST /chat/message. A nil SessionID starts a
// new session and is sent as JSON null.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

type ChatMetadata struct {
	HasContext    bool   `json:"has_context"`
	ModelUsed     string `json:"model_used"`
	ContextLength int    `json:"context_length"`
	MessageCount  int    `json:"message_count"`
}

type ChatResponse struct {
	Response   string       `json:"response"`
	SessionID  string       `json:"session_id"`
	Intent     string       `json:"intent"`
	Confidence float64      `json:"confidence"`
	Metadata   ChatMetadata `json:"metadata"`
}

type ModelInfo struct {
	ModelName         string `json:"model_name"`
	Backend           string `json:"backend"`
	IsLoaded          bool   `json:"is_loaded"`
	MaxResponseLength int    `json:"max_response_length"`
	MaxContextLength  int    `json:"max_context_length"`
}

type ModelInfoResponse struct {
	Success   bool      `json:"success"`
	ModelInfo ModelInfo `json:"model_info"`
}

type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastMessage  *string   `json:"last_message"`
}

type SessionsResponse struct {
	Success  bool             `json:"success"`
	Count    int              `json:"count"`
	Sessions []SessionSummary `json:"sessions"`
}

type HistoryMessage struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence"`
	Intent     *string   `json:"intent"`
	CreatedAt  time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Success      bool             `json:"success"`
	SessionID    string           `json:"session_id"`
	MessageCount int              `json:"message_count"`
	Messages     []HistoryMessage `json:"messages"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WSRequest is one client frame on the WebSocket transport.
type WSRequest struct {
	RequestID string  `json:"request_id"`
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// WSResponse answers the WSRequest with the same RequestID. Exactly one of
// Error and the embedded ChatResponse is meaningful.
type WSResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
	*ChatResponse
}
