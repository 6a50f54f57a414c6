package judge

import (
	"context"
	"fmt"

	"github.com/kurtnissen/ai-swarm/internal/config"
	"google.golang.org/genai"
)

// ModelClient abstracts the judging/planning model so the verifier and
// target parser stay testable without network access.
type ModelClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateVision(ctx context.Context, prompt string, imagePNG []byte) (string, error)
}

// GeminiClient implements ModelClient on the Google GenAI API.
type GeminiClient struct {
	client      *genai.Client
	visionModel string
	textModel   string
}

func NewGeminiClient(ctx context.Context, cfg config.JudgeConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("judge API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = "gemini-2.5-flash"
	}
	textModel := cfg.TextModel
	if textModel == "" {
		textModel = visionModel
	}

	return &GeminiClient{
		client:      client,
		visionModel: visionModel,
		textModel:   textModel,
	}, nil
}

func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return result.Text(), nil
}

func (c *GeminiClient) GenerateVision(ctx context.Context, prompt string, imagePNG []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(imagePNG, "image/png"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	result, err := c.client.Models.GenerateContent(ctx, c.visionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate vision: %w", err)
	}
	return result.Text(), nil
}
