package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/aisuite/internal/domain"
)

type VertexConfig struct {
	ProjectID       string
	Location        string
	ModelName       string
	MaxOutputTokens int32
}

type VertexClient struct {
	client    *genai.Client
	modelName string
	maxTokens int32
}

// NewVertexClient creates an LLMClient based on Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Location == "" {
		return nil, fmt.Errorf("vertex: project and location are required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.5-flash-lite"
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 512
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.ProjectID,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: cfg.ModelName,
		maxTokens: cfg.MaxOutputTokens,
	}, nil
}

func (v *VertexClient) ModelName() string {
	return v.modelName
}

// GenerateReply implements domain.LLMClient. The flattened prompt is not
// needed: Gemini takes the history as structured turns.
func (v *VertexClient) GenerateReply(
	ctx context.Context,
	_ string,
	convCtx domain.ConversationContext,
) (string, error) {
	contents := toContents(convCtx)

	temp := float32(0.8)
	topP := float32(0.9)
	topK := float32(50)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(), genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		TopK:              &topK,
		MaxOutputTokens:   v.maxTokens,
	}

	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("vertex returned empty text")
	}

	return text, nil
}

func toContents(convCtx domain.ConversationContext) []*genai.Content {
	contents := make([]*genai.Content, 0, len(convCtx.History)+1)
	for _, m := range convCtx.History {
		var role genai.Role = genai.RoleUser
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return append(contents, genai.NewContentFromText(convCtx.UserMessage, genai.RoleUser))
}
