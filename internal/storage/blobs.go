package storage

import (
	"context"
	"errors"
)

var (
	ErrBlobNotFound  = errors.New("blob not found")
	ErrQuotaExceeded = errors.New("local storage quota exceeded")
)

// Blobs is a small key/value store for whole JSON documents, the server-side
// counterpart of browser local storage.
type Blobs interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}
