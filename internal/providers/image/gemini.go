package image

import (
	"context"

	"loom/internal/providers/genai"
)

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) GenerateImage(ctx context.Context, req Request) (string, error) {
	return g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:         req.Prompt,
		AspectRatio:    req.AspectRatio,
		ReferenceImage: req.ReferenceImage,
		BrandStyle:     req.BrandStyle,
	})
}

func (g *GeminiGenerator) AnalyzeImage(ctx context.Context, referenceImage string) (string, error) {
	return g.client.AnalyzeImage(ctx, referenceImage)
}

var _ Provider = (*GeminiGenerator)(nil)
