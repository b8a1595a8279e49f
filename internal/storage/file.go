package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/drallgood/gutendex-nexus/internal/logger"
)

const (
	// FileFormatVersion is the current version of the store document
	FileFormatVersion = "1"
)

// fileDocument is the on-disk shape of a FileStore
type fileDocument struct {
	Version string            `json:"version"`
	Entries map[string]string `json:"entries"`
}

// FileStore keeps all entries in one JSON document that is rewritten on every change
type FileStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
	closed  bool
	logger  *logger.Logger
	hub     hub
}

// NewFileStore loads the document at path, creating it when missing
func NewFileStore(path string, log *logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.Get()
	}
	if path == "" {
		return nil, errors.New("file store needs a path")
	}

	entries, err := loadDocument(path)
	if err != nil {
		return nil, err
	}

	s := &FileStore{path: path, entries: entries, logger: log}
	if err := s.save(); err != nil {
		return nil, fmt.Errorf("failed to initialize store file at %q: %w", path, err)
	}

	log.Debug("Opened file store", map[string]interface{}{
		"path":    path,
		"entries": len(entries),
	})
	return s, nil
}

func loadDocument(path string) (map[string]string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read store file at %q: %w", path, err)
	}

	var version struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &version); err != nil {
		return nil, fmt.Errorf("invalid store file format: %w", err)
	}

	switch version.Version {
	case "":
		// unversioned: a flat key/value dump as exported from browser storage
		var flat map[string]string
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, fmt.Errorf("failed to parse unversioned store file: %w", err)
		}
		return flat, nil
	case FileFormatVersion:
		var doc fileDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse store file: %w", err)
		}
		if doc.Entries == nil {
			doc.Entries = make(map[string]string)
		}
		return doc.Entries, nil
	default:
		return nil, fmt.Errorf("unsupported store file version: %s", version.Version)
	}
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev, existed := s.entries[key]
	s.entries[key] = string(value)
	if err := s.save(); err != nil {
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.hub.publish(key, value)
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev, existed := s.entries[key]
	if !existed {
		s.mu.Unlock()
		s.hub.publish(key, nil)
		return nil
	}
	delete(s.entries, key)
	if err := s.save(); err != nil {
		s.entries[key] = prev
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.hub.publish(key, nil)
	return nil
}

func (s *FileStore) Subscribe(key string, fn Listener) func() {
	return s.hub.subscribe(key, fn)
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// save writes the document atomically. Callers hold s.mu.
func (s *FileStore) save() error {
	targetDir := filepath.Dir(s.path)

	// temp file in the target directory so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(targetDir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %q: %w", targetDir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		if _, err := os.Stat(tmpPath); err == nil {
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fileDocument{Version: FileFormatVersion, Entries: s.entries}); err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync store file: %w", err)
	}
	// Close before renaming (required on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file to %q: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		return fmt.Errorf("failed to set permissions on store file: %w", err)
	}
	return nil
}
