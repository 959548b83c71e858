package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("storage: not found")
	// ErrQuotaExceeded is returned by Set when the write would exceed the
	// configured budget. Nothing is written in that case.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Blobs is a small key/value contract for locally persisted state.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
