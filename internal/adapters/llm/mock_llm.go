package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/aisuite/internal/domain"
)

// MockLLM is a deterministic generator for local development and tests.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) ModelName() string {
	return "mock"
}

// GenerateReply answers in the same Human/Assistant completion format a
// causal language model would, echoing the last human line.
func (m *MockLLM) GenerateReply(_ context.Context, prompt string, convCtx domain.ConversationContext) (string, error) {
	last := prompt
	if i := strings.LastIndex(prompt, "Human:"); i >= 0 {
		last = prompt[i+len("Human:"):]
	}
	last, _, _ = strings.Cut(last, "\nAssistant:")
	last = strings.TrimSpace(last)

	reply := fmt.Sprintf("You said %q.", last)
	if len(convCtx.History) > 0 {
		reply += fmt.Sprintf(" We have exchanged %d messages so far.", len(convCtx.History))
	}
	return prompt + " " + reply + "\nHuman:", nil
}
