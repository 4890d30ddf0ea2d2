package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/PabloGalante/aisuite/internal/adapters/llm"
	"github.com/PabloGalante/aisuite/internal/adapters/storage/memory"
	"github.com/PabloGalante/aisuite/internal/app/assistant"
	"github.com/PabloGalante/aisuite/internal/app/conversation"
	"github.com/PabloGalante/aisuite/internal/domain"
)

func newTestService(t *testing.T) (*conversation.Service, *memory.MessageStore) {
	t.Helper()

	engine := assistant.NewEngine(llm.NewMockLLM(), assistant.Config{})
	sessionStore := memory.NewSessionStore()
	messageStore := memory.NewMessageStore()

	return conversation.NewService(engine, sessionStore, messageStore), messageStore
}

func TestSendMessageStartsSession(t *testing.T) {
	ctx := context.Background()
	svc, messages := newTestService(t)

	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "hello there"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if out.SessionID == "" {
		t.Fatalf("expected session id, got empty")
	}
	if out.Reply != `You said "hello there".` {
		t.Fatalf("unexpected reply %q", out.Reply)
	}
	if out.Intent != domain.IntentGreeting {
		t.Fatalf("expected greeting intent, got %q", out.Intent)
	}
	if out.HasContext || out.ContextLength != 0 || out.MessageCount != 1 {
		t.Fatalf("unexpected metadata: %+v", out)
	}
	if out.ModelUsed != "mock" {
		t.Fatalf("expected mock model, got %q", out.ModelUsed)
	}

	stored, err := messages.GetMessagesBySession(ctx, out.SessionID, 0)
	if err != nil {
		t.Fatalf("GetMessagesBySession failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(stored))
	}
	if stored[0].Role != domain.RoleUser || stored[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", stored[0].Role, stored[1].Role)
	}
	if stored[1].Intent != domain.IntentGreeting || stored[1].Confidence != out.Confidence {
		t.Fatalf("assistant message lost scoring: %+v", stored[1])
	}
}

func TestSendMessageContinuesSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	first, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "hello"})
	if err != nil {
		t.Fatalf("first SendMessage failed: %v", err)
	}

	second, err := svc.SendMessage(ctx, conversation.SendMessageInput{
		SessionID: first.SessionID,
		Text:      "tell me about go",
	})
	if err != nil {
		t.Fatalf("second SendMessage failed: %v", err)
	}

	if second.SessionID != first.SessionID {
		t.Fatalf("session changed: %s -> %s", first.SessionID, second.SessionID)
	}
	if !second.HasContext || second.ContextLength != 2 || second.MessageCount != 3 {
		t.Fatalf("unexpected metadata: %+v", second)
	}
	if !strings.Contains(second.Reply, "We have exchanged 2 messages so far.") {
		t.Fatalf("reply should reflect history, got %q", second.Reply)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{
		SessionID: "does-not-exist",
		Text:      "hi",
	})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSendMessageRejectsBlankText(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "   "})
	if !errors.Is(err, conversation.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestListSessionsSummaries(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	long := strings.Repeat("word ", 30)
	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: long})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	summaries, err := svc.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 session, got %d", len(summaries))
	}

	got := summaries[0]
	if got.Session.ID != out.SessionID {
		t.Fatalf("unexpected session %s", got.Session.ID)
	}
	if got.MessageCount != 2 {
		t.Fatalf("expected 2 messages, got %d", got.MessageCount)
	}
	if !strings.HasSuffix(got.LastMessage, "...") || len(got.LastMessage) != 53 {
		t.Fatalf("expected truncated preview, got %q", got.LastMessage)
	}
}

func TestListSessionsPreviewKeepsRunesWhole(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "a" + strings.Repeat("é", 60)}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	summaries, err := svc.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	got := summaries[0].LastMessage
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 53 {
		t.Fatalf("expected 53 runes, got %d in %q", n, got)
	}
}

func TestSendMessageConcurrentFallbackReplies(t *testing.T) {
	ctx := context.Background()
	engine := assistant.NewEngine(nil, assistant.Config{})
	svc := conversation.NewService(engine, memory.NewSessionStore(), memory.NewMessageStore())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "Hello"})
				if err != nil {
					t.Errorf("SendMessage failed: %v", err)
					return
				}
				if out.ModelUsed != "fallback" || out.Reply == "" {
					t.Errorf("unexpected fallback output: %+v", out)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestGetHistoryAndDeleteSession(t *testing.T) {
	ctx := context.Background()
	svc, messages := newTestService(t)

	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "thanks a lot"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	session, msgs, err := svc.GetHistory(ctx, out.SessionID)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if session.ID != out.SessionID || len(msgs) != 2 {
		t.Fatalf("unexpected history: session=%s messages=%d", session.ID, len(msgs))
	}

	if err := svc.DeleteSession(ctx, out.SessionID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, _, err := svc.GetHistory(ctx, out.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	left, _ := messages.GetMessagesBySession(ctx, out.SessionID, 0)
	if len(left) != 0 {
		t.Fatalf("expected messages removed, got %d", len(left))
	}

	if err := svc.DeleteSession(ctx, out.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestModelInfo(t *testing.T) {
	svc, _ := newTestService(t)

	info := svc.ModelInfo()
	if info.ModelName != "mock" || !info.IsLoaded {
		t.Fatalf("unexpected model info: %+v", info)
	}
	if info.MaxContextLength != assistant.DefaultMaxContextLength {
		t.Fatalf("unexpected max context length %d", info.MaxContextLength)
	}
}
