package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBlobs is a process-local Blobs, used for ephemeral deployments and tests.
type MemoryBlobs struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int64
}

func NewMemoryBlobs(quota int64) *MemoryBlobs {
	return &MemoryBlobs{data: make(map[string][]byte), quota: quota}
}

func (m *MemoryBlobs) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBlobs) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		var used int64
		for k, v := range m.data {
			if k != key {
				used += int64(len(v))
			}
		}
		if used+int64(len(data)) > m.quota {
			return fmt.Errorf("%w: writing %s needs %d bytes", ErrQuotaExceeded, key, len(data))
		}
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobs) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}
