package image

import (
	"context"

	"loom/internal/domain"
)

// Request is one generation call: a fully expanded prompt plus the batch's
// shared parameters.
type Request struct {
	Prompt         string
	AspectRatio    domain.AspectRatio
	ReferenceImage string
	BrandStyle     string
}

// Generator produces one image for a request and returns an addressable
// image reference (a data URI).
type Generator interface {
	GenerateImage(ctx context.Context, req Request) (string, error)
}

// Analyzer describes a reference garment photo.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, referenceImage string) (string, error)
}

// Provider bundles both operations of the generation service.
type Provider interface {
	Generator
	Analyzer
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) GenerateImage(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
