package domain

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by stores when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// LLMClient defines how the assistant engine talks to a text generator.
type LLMClient interface {
	GenerateReply(ctx context.Context, prompt string, convCtx ConversationContext) (string, error)
	ModelName() string
}

// ConversationContext gives the LLM minimal context about the conversation.
type ConversationContext struct {
	SessionID   SessionID
	UserMessage string
	History     []*Message // last N messages, oldest first
}

// SessionStore defines session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// ListSessions returns sessions ordered by UpdatedAt, newest first.
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	DeleteSession(ctx context.Context, id SessionID) error
}

// MessageStore defines message persistence. Messages of a session are
// returned in insertion order.
type MessageStore interface {
	AppendMessages(ctx context.Context, msgs ...*Message) error
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
	DeleteMessagesBySession(ctx context.Context, sessionID SessionID) error
}
