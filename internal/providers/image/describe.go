package image

import (
	"context"
	"strings"

	"loom/internal/infra"
)

// FallbackDescription is returned whenever garment analysis cannot produce text.
const FallbackDescription = "Professional model wearing this clothing item"

// Describe analyses referenceImage and never fails: errors, a nil analyzer or
// an empty answer all yield FallbackDescription.
func Describe(ctx context.Context, analyzer Analyzer, referenceImage string, logger *infra.Logger) string {
	if analyzer == nil || strings.TrimSpace(referenceImage) == "" {
		return FallbackDescription
	}
	text, err := analyzer.AnalyzeImage(ctx, referenceImage)
	if err != nil {
		l := infra.OrDiscard(logger)
		l.Warn().Err(err).Msg("image: reference analysis failed; using fallback description")
		return FallbackDescription
	}
	if text = strings.TrimSpace(text); text == "" {
		return FallbackDescription
	}
	return text
}
