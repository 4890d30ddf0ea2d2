// Package redis stores chat sessions and their messages in Redis.
//
// Layout, with the default "aisuite:" prefix:
//
//	aisuite:chat:session:<id>   JSON session record
//	aisuite:chat:messages:<id>  list of JSON message records, oldest first
//	aisuite:chat:sessions       sorted set of session ids scored by updated_at
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/aisuite/internal/domain"
)

const (
	DefaultPrefix     = "aisuite:"
	DefaultSessionTTL = 24 * time.Hour
)

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore wraps rdb. A ttl of zero keeps sessions forever; every write
// to a session refreshes its ttl.
func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) sessionKey(id domain.SessionID) string {
	return fmt.Sprintf("%schat:session:%s", s.prefix, id)
}

func (s *Store) messagesKey(id domain.SessionID) string {
	return fmt.Sprintf("%schat:messages:%s", s.prefix, id)
}

func (s *Store) indexKey() string {
	return s.prefix + "chat:sessions"
}

type sessionRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Intent     string    `json:"intent,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

func encodeSession(session *domain.Session) ([]byte, error) {
	data, err := json.Marshal(sessionRecord{
		ID:        string(session.ID),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*domain.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &domain.Session{
		ID:        domain.SessionID(rec.ID),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	created, err := s.rdb.SetNX(ctx, s.sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis CreateSession: %w", err)
	}
	if !created {
		return errors.New("session already exists")
	}

	if err := s.rdb.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(session.UpdatedAt.UnixMilli()),
		Member: string(session.ID),
	}).Err(); err != nil {
		return fmt.Errorf("redis CreateSession index: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	updated, err := s.rdb.SetXX(ctx, s.sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis UpdateSession: %w", err)
	}
	if !updated {
		return domain.ErrSessionNotFound
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(session.UpdatedAt.UnixMilli()),
			Member: string(session.ID),
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.messagesKey(session.ID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis UpdateSession index: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	data, err := s.rdb.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GetSession: %w", err)
	}
	return decodeSession(data)
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListSessions: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(domain.SessionID(id))
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListSessions load: %w", err)
	}

	out := make([]*domain.Session, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// session key expired; drop it from the index
			expired = append(expired, ids[i])
			continue
		}
		sess, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}

	if len(expired) > 0 {
		if err := s.rdb.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("redis ListSessions prune: %w", err)
		}
	}
	return out, nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	n, err := s.rdb.Del(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis DeleteSession: %w", err)
	}
	if err := s.rdb.ZRem(ctx, s.indexKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("redis DeleteSession index: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
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

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		touched := make(map[domain.SessionID]bool)
		for _, msg := range msgs {
			data, err := json.Marshal(messageRecord{
				ID:         string(msg.ID),
				SessionID:  string(msg.SessionID),
				Role:       string(msg.Role),
				Content:    msg.Content,
				CreatedAt:  msg.CreatedAt,
				Intent:     string(msg.Intent),
				Confidence: msg.Confidence,
			})
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			pipe.RPush(ctx, s.messagesKey(msg.SessionID), data)
			touched[msg.SessionID] = true
		}
		if s.ttl > 0 {
			for id := range touched {
				pipe.Expire(ctx, s.messagesKey(id), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis AppendMessages: %w", err)
	}
	return nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.rdb.LRange(ctx, s.messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis GetMessagesBySession: %w", err)
	}

	out := make([]*domain.Message, 0, len(raw))
	for _, item := range raw {
		var rec messageRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out = append(out, &domain.Message{
			ID:         domain.MessageID(rec.ID),
			SessionID:  domain.SessionID(rec.SessionID),
			Role:       domain.Role(rec.Role),
			Content:    rec.Content,
			CreatedAt:  rec.CreatedAt,
			Intent:     domain.Intent(rec.Intent),
			Confidence: rec.Confidence,
		})
	}
	return out, nil
}

func (s *Store) DeleteMessagesBySession(ctx context.Context, sessionID domain.SessionID) error {
	if err := s.rdb.Del(ctx, s.messagesKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis DeleteMessagesBySession: %w", err)
	}
	return nil
}
