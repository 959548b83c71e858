package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed poses.yaml
var defaultCatalogYAML []byte

// Pose describes a selectable model pose.
type Pose struct {
	Tag    string `yaml:"tag" json:"tag"`
	Label  string `yaml:"label" json:"label"`
	Phrase string `yaml:"phrase" json:"phrase"`
}

type catalogFile struct {
	Default string `yaml:"default"`
	Poses   []Pose `yaml:"poses"`
}

// Catalog resolves pose tags to the phrase injected into prompts.
type Catalog struct {
	defaultTag string
	poses      []Pose
	byTag      map[string]Pose
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Errorf("prompt: embedded pose catalog: %w", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the
// embedded catalog.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read pose catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML pose catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("prompt: decode pose catalog: %w", err)
	}
	if len(file.Poses) == 0 {
		return nil, errors.New("prompt: pose catalog is empty")
	}
	title := cases.Title(language.English)
	c := &Catalog{byTag: make(map[string]Pose, len(file.Poses))}
	for _, p := range file.Poses {
		p.Tag = normalizeTag(p.Tag)
		if p.Tag == "" {
			return nil, errors.New("prompt: pose without tag")
		}
		if _, dup := c.byTag[p.Tag]; dup {
			return nil, fmt.Errorf("prompt: duplicate pose tag %q", p.Tag)
		}
		p.Phrase = strings.TrimSpace(p.Phrase)
		if p.Phrase == "" {
			p.Phrase = strings.ReplaceAll(p.Tag, "-", " ")
		}
		if strings.TrimSpace(p.Label) == "" {
			p.Label = title.String(strings.ReplaceAll(p.Tag, "-", " "))
		}
		c.poses = append(c.poses, p)
		c.byTag[p.Tag] = p
	}
	c.defaultTag = normalizeTag(file.Default)
	if _, ok := c.byTag[c.defaultTag]; !ok {
		c.defaultTag = c.poses[0].Tag
	}
	return c, nil
}

// Poses lists the catalog in file order.
func (c *Catalog) Poses() []Pose {
	return append([]Pose(nil), c.poses...)
}

// DefaultTag is used when the caller selects no pose.
func (c *Catalog) DefaultTag() string {
	return c.defaultTag
}

// Phrase returns the prompt phrase for tag. Tags outside the catalog are
// treated as free-form pose descriptions and returned trimmed.
func (c *Catalog) Phrase(tag string) string {
	if p, ok := c.byTag[normalizeTag(tag)]; ok {
		return p.Phrase
	}
	return strings.TrimSpace(tag)
}

// Select normalises a user pose selection: blanks dropped, duplicates
// collapsed keeping first-selection order, default pose when nothing remains.
func (c *Catalog) Select(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		key := normalizeTag(tag)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if _, known := c.byTag[key]; known {
			out = append(out, key)
		} else {
			out = append(out, strings.TrimSpace(tag))
		}
	}
	if len(out) == 0 {
		out = append(out, c.defaultTag)
	}
	return out
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return strings.Join(strings.Fields(tag), "-")
}
