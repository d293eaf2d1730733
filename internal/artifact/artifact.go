// Package artifact stores generated media and returns the handle the queue
// records for it.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Store persists one artifact and returns its handle (a URL or path).
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// LocalStore writes artifacts below a directory. Handles are file:// URLs.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Put(ctx context.Context, key, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating artifact dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return "file://" + path, nil
}

// path resolves key inside the store directory, refusing keys that escape it.
func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("empty artifact key: %w", domain.ErrInvalidInput)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}
