// Package cache keeps derived text (translations) keyed by namespace and source text. The store is
// handed to whoever needs it; there is no process-wide instance.
package cache

import (
	"context"
	"errors"
)

var ErrMiss = errors.New("cache miss")

type Store interface {
	// Get returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	Close() error
}
