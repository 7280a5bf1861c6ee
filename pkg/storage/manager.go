package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Manager handles media file writes under a per-source subdirectory of the
// data root
type Manager struct {
	sourceDir string
	written   map[string]bool
	mu        sync.RWMutex
}

// NewManager creates a storage manager for one source type. The directory is
// created up front so the first download does not race to create it.
func NewManager(dataRoot, sourceType string) (*Manager, error) {
	sourceDir := filepath.Join(dataRoot, sourceType)
	if err := os.MkdirAll(sourceDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &Manager{
		sourceDir: sourceDir,
		written:   make(map[string]bool),
	}, nil
}

// Exists reports whether a file with the given name is already on disk
func (m *Manager) Exists(filename string) bool {
	m.mu.RLock()
	known := m.written[filename]
	m.mu.RUnlock()
	if known {
		return true
	}

	_, err := os.Stat(filepath.Join(m.sourceDir, filename))
	return err == nil
}

// SaveMedia writes media bytes to the given file name and returns the full
// path. The write goes through a temporary file and an atomic rename so a
// partial transfer never leaves a truncated media file behind.
func (m *Manager) SaveMedia(r io.Reader, filename string) (string, error) {
	path := filepath.Join(m.sourceDir, filename)

	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.written[filename] = true
	m.mu.Unlock()

	return path, nil
}

// Dir returns the per-source media directory
func (m *Manager) Dir() string {
	return m.sourceDir
}
