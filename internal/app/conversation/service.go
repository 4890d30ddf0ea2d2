package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PabloGalante/aisuite/internal/app/assistant"
	"github.com/PabloGalante/aisuite/internal/domain"
	"github.com/PabloGalante/aisuite/internal/idgen"
	"github.com/PabloGalante/aisuite/internal/observability"
)

const (
	DefaultSessionListLimit = 10
	lastMessagePreviewLen   = 50
)

// ErrEmptyMessage is returned when SendMessage gets blank text.
var ErrEmptyMessage = errors.New("message is required")

type Service struct {
	engine       *assistant.Engine
	sessionStore domain.SessionStore
	messageStore domain.MessageStore
	now          func() time.Time
}

func NewService(
	engine *assistant.Engine,
	sessionStore domain.SessionStore,
	messageStore domain.MessageStore,
) *Service {
	return &Service{
		engine:       engine,
		sessionStore: sessionStore,
		messageStore: messageStore,
		now:          time.Now,
	}
}

type SendMessageInput struct {
	// SessionID is empty for the first message of a new session.
	SessionID domain.SessionID
	Text      string
}

type SendMessageOutput struct {
	SessionID     domain.SessionID
	Reply         string
	Intent        domain.Intent
	Confidence    float64
	HasContext    bool
	ModelUsed     string
	ContextLength int
	MessageCount  int
}

func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyMessage
	}

	session, err := s.getOrCreateSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With("session_id", session.ID)

	history, err := s.messageStore.GetMessagesBySession(ctx, session.ID, 0)
	if err != nil {
		log.Error("failed to load history", "error", err)
		return nil, err
	}

	reply := s.engine.Run(ctx, session.ID, in.Text, history)

	userMsg := &domain.Message{
		ID:        domain.MessageID(idgen.NewMessageID()),
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   in.Text,
		CreatedAt: s.now(),
	}
	assistantMsg := &domain.Message{
		ID:         domain.MessageID(idgen.NewMessageID()),
		SessionID:  session.ID,
		Role:       domain.RoleAssistant,
		Content:    reply.Text,
		CreatedAt:  s.now(),
		Intent:     reply.Intent,
		Confidence: reply.Confidence,
	}

	if err := s.messageStore.AppendMessages(ctx, userMsg, assistantMsg); err != nil {
		log.Error("failed to append messages", "error", err)
		return nil, err
	}

	session.UpdatedAt = s.now()
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		log.Error("failed to update session", "error", err)
		return nil, err
	}

	log.Info("chat message processed", "intent", reply.Intent, "history_len", len(history))

	return &SendMessageOutput{
		SessionID:     session.ID,
		Reply:         reply.Text,
		Intent:        reply.Intent,
		Confidence:    reply.Confidence,
		HasContext:    reply.HasContext,
		ModelUsed:     reply.ModelUsed,
		ContextLength: reply.ContextLength,
		MessageCount:  len(history) + 1,
	}, nil
}

func (s *Service) getOrCreateSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	log := observability.LoggerFromContext(ctx)

	if id != "" {
		session, err := s.sessionStore.GetSession(ctx, id)
		if err != nil {
			log.Warn("failed to get session", "session_id", id, "error", err)
			return nil, err
		}
		return session, nil
	}

	now := s.now()
	session := &domain.Session{
		ID:        domain.SessionID(idgen.NewSessionID()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionStore.CreateSession(ctx, session); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	log.Info("session started", "session_id", session.ID)
	return session, nil
}

type SessionSummary struct {
	Session      *domain.Session
	MessageCount int
	// LastMessage is empty when the session has no messages.
	LastMessage string
}

// ListSessions returns the most recently updated sessions first.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultSessionListLimit
	}

	sessions, err := s.sessionStore.ListSessions(ctx, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to list sessions", "error", err)
		return nil, err
	}

	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		msgs, err := s.messageStore.GetMessagesBySession(ctx, sess.ID, 0)
		if err != nil {
			return nil, err
		}
		summary := SessionSummary{Session: sess, MessageCount: len(msgs)}
		if len(msgs) > 0 {
			summary.LastMessage = preview(msgs[len(msgs)-1].Content)
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Service) GetHistory(ctx context.Context, sessionID domain.SessionID) (*domain.Session, []*domain.Message, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		log.Warn("failed to get session", "error", err)
		return nil, nil, err
	}

	msgs, err := s.messageStore.GetMessagesBySession(ctx, sessionID, 0)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, nil, err
	}

	log.Info("fetched session history", "message_count", len(msgs))
	return session, msgs, nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID domain.SessionID) error {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	if err := s.sessionStore.DeleteSession(ctx, sessionID); err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			log.Error("failed to delete session", "error", err)
		}
		return err
	}
	if err := s.messageStore.DeleteMessagesBySession(ctx, sessionID); err != nil {
		log.Error("failed to delete messages", "error", err)
		return err
	}

	log.Info("session deleted")
	return nil
}

func (s *Service) ModelInfo() domain.ModelInfo {
	return s.engine.ModelInfo()
}

// preview cuts content to lastMessagePreviewLen runes.
func preview(content string) string {
	if utf8.RuneCountInString(content) <= lastMessagePreviewLen {
		return content
	}
	return string([]rune(content)[:lastMessagePreviewLen]) + "..."
}
