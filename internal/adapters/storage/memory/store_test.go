package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/aisuite/internal/domain"
)

func TestSessionStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []domain.SessionID{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateSession(ctx, &domain.Session{ID: id, CreatedAt: at, UpdatedAt: at}))
	}
	require.NoError(t, s.UpdateSession(ctx, &domain.Session{ID: "a", CreatedAt: base, UpdatedAt: base.Add(time.Hour)}))

	got, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionID("a"), got[0].ID)
	assert.Equal(t, domain.SessionID("c"), got[1].ID)
}

func TestSessionStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	_, err := s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, s.UpdateSession(ctx, &domain.Session{ID: "missing"}), domain.ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, "missing"), domain.ErrSessionNotFound)

	require.NoError(t, s.CreateSession(ctx, &domain.Session{ID: "x"}))
	assert.Error(t, s.CreateSession(ctx, &domain.Session{ID: "x"}))
	require.NoError(t, s.DeleteSession(ctx, "x"))
	_, err = s.GetSession(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMessageStoreKeepsOrderAndLimits(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()

	require.NoError(t, s.AppendMessages(ctx,
		&domain.Message{ID: "1", SessionID: "s", Content: "one"},
		&domain.Message{ID: "2", SessionID: "s", Content: "two"},
	))
	require.NoError(t, s.AppendMessages(ctx, &domain.Message{ID: "3", SessionID: "s", Content: "three"}))
	require.NoError(t, s.AppendMessages(ctx, &domain.Message{ID: "x", SessionID: "other", Content: "other"}))

	all, err := s.GetMessagesBySession(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Content)
	assert.Equal(t, "three", all[2].Content)

	last, err := s.GetMessagesBySession(ctx, "s", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "two", last[0].Content)

	all[0].Content = "mutated"
	again, _ := s.GetMessagesBySession(ctx, "s", 0)
	assert.Equal(t, "one", again[0].Content)

	require.NoError(t, s.DeleteMessagesBySession(ctx, "s"))
	none, err := s.GetMessagesBySession(ctx, "s", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
