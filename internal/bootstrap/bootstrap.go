// Package bootstrap assembles the studio's collaborators from configuration.
// Every binary goes through it so they share storage, credentials and the
// generation provider.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"loom/internal/infra"
	"loom/internal/infra/credentials"
	"loom/internal/prompt"
	"loom/internal/providers/genai"
	"loom/internal/providers/image"
	"loom/internal/storage"
)

const redisKeyPrefix = "loom:"

// Storage bundles the blob backend used for state with the local file store
// used for exported images.
type Storage struct {
	Blobs storage.Blobs
	Files *storage.FileStore

	redis *redis.Client
}

// Close releases backend connections.
func (s *Storage) Close() error {
	if s == nil || s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

// OpenStorage prepares the configured blob backend.
func OpenStorage(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Storage, error) {
	l := infra.OrDiscard(logger)

	path := strings.TrimSpace(cfg.StoragePath)
	if path == "" {
		path = "./storage"
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	files, err := storage.NewFileStore(path, cfg.StorageQuotaBytes)
	if err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case infra.StorageBackendRedis:
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		l.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("bootstrap: using redis state backend")
		return &Storage{
			Blobs: storage.NewRedisStore(client, redisKeyPrefix, cfg.StorageQuotaBytes),
			Files: files,
			redis: client,
		}, nil
	case infra.StorageBackendFile, "":
		l.Info().Str("path", files.BasePath()).Int64("quota_bytes", cfg.StorageQuotaBytes).Msg("bootstrap: using file state backend")
		return &Storage{Blobs: files, Files: files}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown storage backend %q", cfg.StorageBackend)
	}
}

// Credentials builds the credential store backed by blobs. The environment
// key wins over a stored one.
func Credentials(cfg *infra.Config, blobs storage.Blobs) *credentials.Store {
	return credentials.NewStore(blobs, cfg.GeminiAPIKey)
}

// Provider returns the configured generation provider.
func Provider(cfg *infra.Config, keys genai.KeySource, logger *infra.Logger) (image.Provider, error) {
	switch cfg.ImageProvider {
	case infra.ImageProviderSynthetic:
		return image.NewSynthetic(0), nil
	case infra.ImageProviderGemini, "":
		client, err := genai.NewClient(genai.Options{
			Keys:       keys,
			BaseURL:    cfg.GeminiBaseURL,
			ImageModel: cfg.GeminiImageModel,
			TextModel:  cfg.GeminiTextModel,
			HTTPClient: &http.Client{Timeout: cfg.GeminiTimeout},
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return image.NewGeminiGenerator(client), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown image provider %q", cfg.ImageProvider)
	}
}

// Catalog loads the pose catalog override, or the embedded default.
func Catalog(cfg *infra.Config) (*prompt.Catalog, error) {
	if strings.TrimSpace(cfg.PoseCatalogPath) == "" {
		return prompt.DefaultCatalog(), nil
	}
	return prompt.LoadCatalog(cfg.PoseCatalogPath)
}
