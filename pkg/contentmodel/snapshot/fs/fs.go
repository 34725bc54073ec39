package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/content-model/pkg/contentmodel/snapshot"
)

// Store is a filesystem implementation of snapshot.Store. Every snapshot is
// one YAML file in the base directory.
type Store struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem store
type Config struct {
	BaseDir string // Directory holding the snapshot files
}

// New creates a filesystem snapshot store, creating the base directory
func New(config Config) (*Store, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: config.BaseDir}, nil
}

func (s *Store) filePath(name string) (string, error) {
	key, err := snapshot.ObjectKey("", name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, key), nil
}

// Save writes doc, replacing an existing snapshot atomically
func (s *Store) Save(ctx context.Context, name string, doc *snapshot.Document) error {
	filePath, err := s.filePath(name)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.baseDir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot name
func (s *Store) Load(ctx context.Context, name string) (*snapshot.Document, error) {
	filePath, err := s.filePath(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	file, err := os.Open(filePath)
	s.mu.RUnlock()
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", snapshot.ErrNotFound, name)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return snapshot.Decode(file)
}

// Delete removes the snapshot name
func (s *Store) Delete(ctx context.Context, name string) error {
	filePath, err := s.filePath(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filePath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", snapshot.ErrNotFound, name)
	} else if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the names of all stored snapshots in lexical order
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.baseDir)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if name, ok := snapshot.NameOf("", entry.Name()); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
