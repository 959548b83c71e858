package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"time"

	"loom/internal/domain"
)

// SyntheticDescription is what the synthetic analyzer reports for any photo.
const SyntheticDescription = "Relaxed fit cotton garment with clean seams and minimal branding"

// Synthetic renders deterministic placeholder images without calling a
// remote model. It keeps the studio usable offline and in tests.
type Synthetic struct {
	// Width is the rendered width in pixels; height follows the aspect ratio.
	Width int
	// Delay simulates model latency.
	Delay time.Duration
}

func NewSynthetic(delay time.Duration) *Synthetic {
	return &Synthetic{Width: 192, Delay: delay}
}

func (s *Synthetic) GenerateImage(ctx context.Context, req Request) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	width, height := frameSize(s.Width, req.AspectRatio)
	seed := deterministicSeed(req.Prompt, req.AspectRatio, req.BrandStyle, req.ReferenceImage != "")
	data, err := renderSyntheticImage(width, height, seed)
	if err != nil {
		return "", err
	}
	return domain.EncodeDataURI("image/png", data), nil
}

func (s *Synthetic) AnalyzeImage(ctx context.Context, referenceImage string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if _, _, err := domain.DecodeDataURI(referenceImage); err != nil {
		return "", err
	}
	return SyntheticDescription, nil
}

func (s *Synthetic) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// frameSize maps an aspect ratio onto pixel dimensions for the given width.
func frameSize(width int, aspect domain.AspectRatio) (int, int) {
	if width <= 0 {
		width = 192
	}
	switch aspect {
	case domain.AspectPortrait:
		return width, width * 4 / 3
	case domain.AspectLandscape:
		return width, width * 3 / 4
	case domain.AspectStory:
		return width, width * 16 / 9
	case domain.AspectWide:
		return width, width * 9 / 16
	default:
		return width, width
	}
}

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{C: base}, stdimage.Point{}, draw.Src)

	stripe := max(8, height/12)
	for y := 0; y < height; y += stripe * 2 {
		band := stdimage.Rect(0, y, width, min(height, y+stripe))
		draw.Draw(img, band, &stdimage.Uniform{C: accent}, stdimage.Point{}, draw.Over)
	}

	// Silhouette block standing in for the model.
	figure := colorFromSeed(seed, 2)
	body := stdimage.Rect(width*3/8, height/6, width*5/8, height*5/6)
	draw.Draw(img, body, &stdimage.Uniform{C: figure}, stdimage.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("synthetic: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Provider = (*Synthetic)(nil)
