package domain

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
)

// EncodeDataURI renders raw bytes as a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its MIME type and payload.
// A bare base64 string without the data: prefix is accepted as image/png.
func DecodeDataURI(uri string) (string, []byte, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	mime := "image/png"
	payload := uri
	if strings.HasPrefix(uri, "data:") {
		header, rest, ok := strings.Cut(uri, ",")
		if !ok {
			return "", nil, fmt.Errorf("%w: malformed data uri", ErrInvalidInput)
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return "", nil, fmt.Errorf("%w: data uri is not base64", ErrInvalidInput)
		}
		if m := strings.TrimSuffix(meta, ";base64"); m != "" {
			mime = m
		}
		payload = rest
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: decode image: %v", ErrInvalidInput, err)
	}
	return mime, data, nil
}

// ImageExtension maps an image MIME type to a file extension. An empty type
// is treated as PNG.
func ImageExtension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png", "":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
