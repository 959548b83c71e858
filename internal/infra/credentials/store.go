package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"

	"loom/internal/infra"
	"loom/internal/storage"
)

const (
	ProviderGemini = "gemini"

	blobKeyPrefix = "loom_api_key"
)

// Gate is the host capability that reports and selects the generation
// credential.
type Gate interface {
	HasCredential(ctx context.Context) (bool, error)
	SelectCredential(ctx context.Context, key string) error
}

// Check asks gate whether a credential is present. A nil gate or a failing
// check is treated as present so the studio stays usable.
func Check(ctx context.Context, gate Gate, logger *infra.Logger) bool {
	if gate == nil {
		return true
	}
	ok, err := gate.HasCredential(ctx)
	if err != nil {
		l := infra.OrDiscard(logger)
		l.Warn().Err(err).Msg("credentials: check failed, assuming credential present")
		return true
	}
	return ok
}

// Store keeps the selected API key in blob storage. A key supplied through
// the environment wins over the stored one.
type Store struct {
	blobs  storage.Blobs
	envKey string

	mu     sync.RWMutex
	cached string
	loaded bool
}

// NewStore builds a Store. envKey may be empty.
func NewStore(blobs storage.Blobs, envKey string) *Store {
	return &Store{blobs: blobs, envKey: strings.TrimSpace(envKey)}
}

// GeminiAPIKey returns the key used for Gemini calls, or "" if none is set.
func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

// Token returns the stored token for provider.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	if provider == ProviderGemini && s.envKey != "" {
		return s.envKey, nil
	}
	s.mu.RLock()
	if s.loaded {
		token := s.cached
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	if s.blobs == nil {
		return "", nil
	}
	raw, err := s.blobs.Get(ctx, blobKey(provider))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.remember("")
			return "", nil
		}
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	s.remember(token)
	return token, nil
}

// SetGeminiAPIKey persists key as the selected Gemini credential.
func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	if s.blobs != nil {
		if err := s.blobs.Set(ctx, blobKey(ProviderGemini), []byte(key)); err != nil {
			return err
		}
	}
	s.remember(key)
	return nil
}

// HasCredential implements Gate.
func (s *Store) HasCredential(ctx context.Context) (bool, error) {
	key, err := s.GeminiAPIKey(ctx)
	if err != nil {
		return false, err
	}
	return key != "", nil
}

// SelectCredential implements Gate.
func (s *Store) SelectCredential(ctx context.Context, key string) error {
	return s.SetGeminiAPIKey(ctx, key)
}

func (s *Store) remember(token string) {
	s.mu.Lock()
	s.cached = token
	s.loaded = true
	s.mu.Unlock()
}

func blobKey(provider string) string {
	if provider == ProviderGemini {
		return blobKeyPrefix
	}
	return blobKeyPrefix + "_" + provider
}

var _ Gate = (*Store)(nil)
