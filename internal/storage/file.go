package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileBlobs keeps each key in its own file under dir. Writes go through a
// temp file and rename so a crash never leaves a torn document behind.
type FileBlobs struct {
	dir   string
	quota int64

	mu sync.Mutex
}

// NewFileBlobs creates dir if needed. quota <= 0 disables the size limit.
func NewFileBlobs(dir string, quota int64) (*FileBlobs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage dir: %w", err)
	}
	return &FileBlobs{dir: dir, quota: quota}, nil
}

func (f *FileBlobs) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *FileBlobs) Read(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

func (f *FileBlobs) Write(_ context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.quota > 0 {
		used, err := f.usageExcluding(p)
		if err != nil {
			return err
		}
		if used+int64(len(data)) > f.quota {
			return fmt.Errorf("%w: writing %s needs %d bytes, %d of %d in use",
				ErrQuotaExceeded, key, len(data), used, f.quota)
		}
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (f *FileBlobs) Remove(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileBlobs) usageExcluding(skip string) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if filepath.Join(f.dir, e.Name()) == skip {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
