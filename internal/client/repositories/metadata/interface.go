// Package metadata implements the client's local key/value store. It backs
// both the session projection written by the session store and the token
// bundle kept by the HTTP backend.
package metadata

import (
	"context"
)

// Repository is a byte-oriented key/value store. Get returns (nil, nil) for
// a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
