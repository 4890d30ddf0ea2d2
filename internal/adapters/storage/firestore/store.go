package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/aisuite/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for projectID.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("chat_sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	Role       string    `firestore:"role"`
	Content    string    `firestore:"content"`
	CreatedAt  time.Time `firestore:"created_at"`
	Intent     string    `firestore:"intent"`
	Confidence float64   `firestore:"confidence"`
}

func toSession(id string, doc sessionDoc) *domain.Session {
	return &domain.Session{
		ID:        domain.SessionID(id),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	doc := sessionDoc{
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}

	if _, err := s.sessionDoc(session.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessionDoc(session.ID).Update(ctx, []firestore.Update{
		{Path: "updated_at", Value: session.UpdatedAt},
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return toSession(string(id), doc), nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []*domain.Session{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListSessions: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		out = append(out, toSession(snap.Ref.ID, doc))
	}
	return out, nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	ref := s.sessionDoc(id)
	if _, err := ref.Get(ctx); err != nil {
		if isNotFound(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessages(ctx context.Context, msgs ...*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(msgs))
	for _, msg := range msgs {
		job, err := bw.Set(s.messagesCol(msg.SessionID).Doc(string(msg.ID)), messageDoc{
			Role:       string(msg.Role),
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
			Intent:     string(msg.Intent),
			Confidence: msg.Confidence,
		})
		if err != nil {
			bw.End()
			return fmt.Errorf("firestore AppendMessages: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("firestore AppendMessages: %w", err)
		}
	}
	return nil
}

// GetMessagesBySession returns the last `limit` messages, oldest first.
// Message ids are time ordered, so ordering by document id keeps the
// insertion order of messages written in the same instant.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(sessionID).OrderBy(firestore.DocumentID, firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		out = append(out, &domain.Message{
			ID:         domain.MessageID(snap.Ref.ID),
			SessionID:  sessionID,
			Role:       domain.Role(doc.Role),
			Content:    doc.Content,
			CreatedAt:  doc.CreatedAt,
			Intent:     domain.Intent(doc.Intent),
			Confidence: doc.Confidence,
		})
	}

	// fetched newest first so Limit keeps the tail; flip back
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) DeleteMessagesBySession(ctx context.Context, sessionID domain.SessionID) error {
	iter := s.messagesCol(sessionID).Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	defer bw.End()

	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("firestore DeleteMessagesBySession: %w", err)
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			return fmt.Errorf("firestore DeleteMessagesBySession: %w", err)
		}
	}
	return nil
}
