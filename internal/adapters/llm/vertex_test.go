package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/PabloGalante/aisuite/internal/domain"
)

func TestToContentsMapsRoles(t *testing.T) {
	contents := toContents(domain.ConversationContext{
		UserMessage: "and now?",
		History: []*domain.Message{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello"},
		},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, string(genai.RoleUser), contents[2].Role)
	assert.Equal(t, "and now?", contents[2].Parts[0].Text)
}

func TestNewVertexClientRequiresProject(t *testing.T) {
	_, err := NewVertexClient(context.Background(), VertexConfig{Location: "us-central1"})
	assert.Error(t, err)
}
