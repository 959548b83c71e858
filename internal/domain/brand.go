package domain

import "strings"

// DefaultPDPStyle is injected when the brand has not configured a style.
const DefaultPDPStyle = "Clean minimalist studio background, professional high-key lighting, sharp focus on fabric texture."

// BrandSettings carries brand-level generation defaults.
type BrandSettings struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	IsLoraTrained bool   `json:"isLoraTrained"`
	PDPStyle      string `json:"pdpStyle"`
}

// DefaultBrand returns the settings used before the user configures anything.
func DefaultBrand() BrandSettings {
	return BrandSettings{PDPStyle: DefaultPDPStyle}
}

// DisplayName falls back to a placeholder when the brand is unnamed.
func (b BrandSettings) DisplayName() string {
	if name := strings.TrimSpace(b.Name); name != "" {
		return name
	}
	return "Untitled Brand"
}

// Theme is the persisted UI colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme normalises raw input; anything but "dark" is light.
func ParseTheme(raw string) Theme {
	if strings.EqualFold(strings.TrimSpace(raw), string(ThemeDark)) {
		return ThemeDark
	}
	return ThemeLight
}
