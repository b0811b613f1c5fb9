// Package metadata is a small durable key/value store for device-local state
// (sync cursors, last-seen snapshots) kept next to the record mirror.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
