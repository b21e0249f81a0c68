// Package filestore keeps console state that must survive a restart in
// plain files next to the process, for deployments without Redis.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

const filePerms = 0o600

// FileBulkQueueStore keeps the serialized bulk insert queue in one file.
// Writes go through a temporary file and a rename, so a crash leaves
// either the old or the new queue on disk.
type FileBulkQueueStore struct {
	mu   sync.Mutex
	path string
}

func NewFileBulkQueueStore(path string) *FileBulkQueueStore {
	return &FileBulkQueueStore{path: path}
}

// Load returns the stored queue, or nil when the file does not exist.
func (s *FileBulkQueueStore) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bulk queue file: %w", err)
	}
	return data, nil
}

func (s *FileBulkQueueStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create bulk queue directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write bulk queue file: %w", err)
	}
	// atomic.WriteFile does not set permissions for new files
	if err := os.Chmod(s.path, filePerms); err != nil {
		return fmt.Errorf("failed to set bulk queue file permissions: %w", err)
	}
	return nil
}

func (s *FileBulkQueueStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove bulk queue file: %w", err)
	}
	return nil
}
