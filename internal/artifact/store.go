package artifact

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound indicates the key does not exist in the store.
var ErrObjectNotFound = errors.New("object not found")

// Store is the blob storage behind every pipeline artifact. Writes are
// idempotent overwrites keyed by the conventions in keys.go.
type Store interface {
	// Put stores body at key, replacing any previous object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get returns the object at key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
