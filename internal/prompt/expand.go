package prompt

import (
	"strings"
)

const (
	// DefaultDescription stands in for an empty batch when a reference
	// garment photo is supplied.
	DefaultDescription = "Professional model wearing this clothing item, high-end fashion photography, studio setting"

	// QualitySuffix is appended to every expanded prompt.
	QualitySuffix = "professional e-commerce fashion photography, high resolution, sharp focus, true-to-life colours"
)

// Input is a raw batch submission.
type Input struct {
	Text         string
	HasReference bool
	Poses        []string
}

// Expander turns raw batch input into fully formed prompts.
type Expander struct {
	catalog *Catalog
}

// NewExpander builds an expander over catalog; nil uses the embedded catalog.
func NewExpander(catalog *Catalog) *Expander {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Expander{catalog: catalog}
}

// Catalog exposes the pose catalog backing the expander.
func (e *Expander) Catalog() *Catalog {
	return e.catalog
}

// Expand returns one prompt per description and pose, descriptions outer and
// poses inner. It returns nil when there is nothing to generate.
func (e *Expander) Expand(in Input) []string {
	descriptions := SplitDescriptions(in.Text)
	if len(descriptions) == 0 {
		if !in.HasReference {
			return nil
		}
		descriptions = []string{DefaultDescription}
	}
	poses := e.catalog.Select(in.Poses)
	out := make([]string, 0, len(descriptions)*len(poses))
	for _, desc := range descriptions {
		for _, pose := range poses {
			out = append(out, compose(desc, e.catalog.Phrase(pose)))
		}
	}
	return out
}

// SplitDescriptions splits batch text into trimmed, non-empty lines.
func SplitDescriptions(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// CleanDescription strips quotes and surrounding whitespace from an
// auto-generated garment description.
func CleanDescription(s string) string {
	s = strings.NewReplacer(`"`, "", `'`, "").Replace(s)
	return strings.TrimSpace(s)
}

// AppendDescription adds desc as a new line of batch text.
func AppendDescription(text, desc string) string {
	if desc == "" {
		return text
	}
	if text == "" {
		return desc
	}
	return text + "\n" + desc
}

func compose(desc, pose string) string {
	desc = strings.TrimRight(strings.TrimSpace(desc), ".,;")
	parts := []string{desc}
	if pose != "" {
		parts = append(parts, pose)
	}
	parts = append(parts, QualitySuffix)
	return strings.Join(parts, ", ")
}
