package infra

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ImageProviderGemini    = "gemini"
	ImageProviderSynthetic = "synthetic"

	StorageBackendFile  = "file"
	StorageBackendRedis = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiImageModel   string
	GeminiTextModel    string
	GeminiTimeout      time.Duration
	ImageProvider      string
	StorageBackend     string
	StoragePath        string
	StorageQuotaBytes  int64
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	PersistWindows     []int
	BatchConcurrency   int
	PoseCatalogPath    string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		GeminiAPIKey:       firstEnv("GEMINI_API_KEY", "API_KEY"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiImageModel:   getEnv("GEMINI_IMAGE_MODEL", "gemini-3.1-flash-image-preview"),
		GeminiTextModel:    getEnv("GEMINI_TEXT_MODEL", "gemini-3.1-flash-preview"),
		GeminiTimeout:      time.Second * time.Duration(getEnvInt("GEMINI_TIMEOUT_SECONDS", 0)),
		ImageProvider:      strings.ToLower(getEnv("IMAGE_PROVIDER", ImageProviderGemini)),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendFile)),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageQuotaBytes:  int64(getEnvInt("STORAGE_QUOTA_BYTES", 5*1024*1024)),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		BatchConcurrency:   getEnvInt("BATCH_CONCURRENCY", 1),
		PoseCatalogPath:    os.Getenv("LOOM_POSE_CATALOG"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	windows, err := parseWindows(getEnv("PERSIST_WINDOWS", "10,5"))
	if err != nil {
		return nil, err
	}
	cfg.PersistWindows = windows

	switch cfg.ImageProvider {
	case ImageProviderGemini, ImageProviderSynthetic:
	default:
		return nil, fmt.Errorf("IMAGE_PROVIDER must be %q or %q", ImageProviderGemini, ImageProviderSynthetic)
	}

	switch cfg.StorageBackend {
	case StorageBackendFile, StorageBackendRedis:
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q", StorageBackendFile, StorageBackendRedis)
	}

	if cfg.BatchConcurrency < 1 {
		return nil, fmt.Errorf("BATCH_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

// parseWindows reads a comma separated list of persisted-task windows and
// returns it largest first.
func parseWindows(raw string) ([]int, error) {
	var out []int
	for _, part := range splitList(raw) {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("PERSIST_WINDOWS: invalid window %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("PERSIST_WINDOWS must list at least one window")
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
