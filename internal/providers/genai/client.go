package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"loom/internal/domain"
	"loom/internal/infra"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel = "gemini-3.1-flash-image-preview"
	defaultTextModel  = "gemini-3.1-flash-preview"
	defaultImageSize  = "1K"
)

var (
	ErrMissingCredential = errors.New("API Key is missing. Please select an API key using the key icon in the header.")
	ErrNoCandidates      = errors.New("The model did not return any images. This might be due to safety filters or a temporary service issue.")
	ErrNoImage           = errors.New("No image generated in response")
	ErrNoText            = errors.New("no description returned")
)

// KeySource supplies the API key. It is consulted on every call so a key
// selected while the process runs is picked up by the next request.
type KeySource interface {
	GeminiAPIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource with a fixed value.
type StaticKey string

func (k StaticKey) GeminiAPIKey(context.Context) (string, error) {
	return strings.TrimSpace(string(k)), nil
}

// Options controls how the Gemini client is configured.
type Options struct {
	Keys       KeySource
	BaseURL    string
	ImageModel string
	TextModel  string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the Gemini generateContent endpoint for image generation and
// garment analysis. Each call is single shot; retries and deadlines belong to
// the caller's context.
type Client struct {
	keys       KeySource
	baseURL    string
	imageModel string
	textModel  string
	httpClient *http.Client
	logger     infra.Logger
}

// ImageRequest represents the information required to generate one image.
type ImageRequest struct {
	Prompt         string
	AspectRatio    domain.AspectRatio
	ReferenceImage string
	BrandStyle     string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ImageConfig *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client. A nil HTTP client gets one without
// a timeout since the adapter does not enforce one.
func NewClient(opts Options) (*Client, error) {
	if opts.Keys == nil {
		return nil, errors.New("genai: key source is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}

	return &Client{
		keys:       opts.Keys,
		baseURL:    baseURL,
		imageModel: imageModel,
		textModel:  textModel,
		httpClient: client,
		logger:     infra.OrDiscard(opts.Logger),
	}, nil
}

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string {
	return c.imageModel
}

// GenerateImage renders one image for req and returns it as a data URI.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}

	text := buildImagePrompt(req.Prompt, req.BrandStyle, req.ReferenceImage != "")
	parts := []geminiPart{{Text: text}}
	if req.ReferenceImage != "" {
		inline, err := inlineImage(req.ReferenceImage)
		if err != nil {
			return "", err
		}
		parts = append(parts, geminiPart{InlineData: inline})
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ImageConfig: &geminiImageConfig{
				AspectRatio: string(req.AspectRatio),
				ImageSize:   defaultImageSize,
			},
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, apiKey, c.imageModel, payload, &response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 {
		return "", ErrNoCandidates
	}

	for _, part := range response.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		mime := part.InlineData.MimeType
		if mime == "" {
			mime = "image/png"
		}
		c.logger.Debug().
			Str("model", c.imageModel).
			Str("aspect_ratio", string(req.AspectRatio)).
			Int("bytes", len(part.InlineData.Data)).
			Msg("genai: image generated")
		return "data:" + mime + ";base64," + part.InlineData.Data, nil
	}
	return "", ErrNoImage
}

// AnalyzeImage asks the text model for a short shoot-ready description of the
// garment in referenceImage.
func (c *Client) AnalyzeImage(ctx context.Context, referenceImage string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}
	inline, err := inlineImage(referenceImage)
	if err != nil {
		return "", err
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: inline},
				{Text: analysisInstruction},
			},
		}},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, apiKey, c.textModel, payload, &response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoText
	}
	c.logger.Debug().Str("model", c.textModel).Str("description", text).Msg("genai: reference analysed")
	return text, nil
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	key, err := c.keys.GeminiAPIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("genai: load api key: %w", err)
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingCredential
	}
	return strings.TrimSpace(key), nil
}

func (c *Client) invokeGemini(ctx context.Context, apiKey, model string, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		if msg := strings.TrimSpace(string(data)); msg != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func inlineImage(uri string) (*geminiInlineData, error) {
	mime, data, err := domain.DecodeDataURI(uri)
	if err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	return &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(data)}, nil
}
