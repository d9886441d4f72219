package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStoreConfig holds file store configuration.
type FileStoreConfig struct {
	// Path is the snapshot file location (default: .cache/motions.json).
	Path string
}

// snapshot is the on-disk structure written by FileStore.
type snapshot struct {
	Version int              `json:"version"`
	SavedAt time.Time        `json:"saved_at"`
	Entries []PersistedEntry `json:"entries"`
}

// FileStore persists cache entries as a single JSON snapshot file.
// Suitable for the default single-instance sidecar deployment.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

// NewFileStore creates a file-backed store. An empty path disables
// persistence: Load returns nothing and Save is a no-op.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// Load reads the snapshot file. A missing file is not an error.
func (s *FileStore) Load(_ context.Context) ([]PersistedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	return snap.Entries, nil
}

// Save writes the snapshot file atomically using temp file + rename.
func (s *FileStore) Save(_ context.Context, entries []PersistedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	snap := snapshot{
		Version: 1,
		SavedAt: time.Now().UTC(),
		Entries: entries,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache snapshot: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile) // Clean up temp file
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
