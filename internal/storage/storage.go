// Package storage holds the dedicated document store for signed
// artifacts. One object per record; replacement is delete-then-upload.
package storage

import (
	"context"
	"time"
)

type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	// Delete removes an object if present. Deleting a missing object is
	// not an error.
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
