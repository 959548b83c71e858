package genai

import (
	"strings"

	"loom/internal/domain"
)

const analysisInstruction = "Analyze this clothing item and provide a concise, professional e-commerce description (max 15 words) that would be used as a prompt for a fashion model shoot. Focus on the garment type, material, and key design features."

const referenceInstruction = "CRITICAL: Use the provided SKU image as the exact clothing item. Preserve its color, texture, and design details perfectly."

// buildImagePrompt places the fixed photographer brief and brand style ahead
// of the task prompt.
func buildImagePrompt(prompt, brandStyle string, hasReference bool) string {
	style := strings.TrimSpace(brandStyle)
	if style == "" {
		style = domain.DefaultPDPStyle
	}

	lines := []string{
		"You are a professional e-commerce fashion photographer.",
		"Your goal is to create store-ready PDP (Product Detail Page) assets.",
		"Style Guidelines: " + style,
		"Consistency: Maintain a consistent background and lighting across all generations.",
		"Product: The clothing should be the central focus.",
		"",
		"CRITICAL DETAIL PRESERVATION:",
		"- You MUST preserve the EXACT placement, color, and design of all graphics, patches, embroidery, and textures from the SKU reference.",
		"- Do not simplify or alter unique design elements.",
		"- The garment on the model must look identical to the flatlay SKU provided.",
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nTask: ")
	b.WriteString(strings.TrimSpace(prompt))
	if hasReference {
		b.WriteString("\n\n")
		b.WriteString(referenceInstruction)
	}
	return b.String()
}
