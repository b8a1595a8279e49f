// Package storage is the local key-value store behind favorites, settings and history.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/drallgood/gutendex-nexus/internal/logger"
)

// Well-known keys
const (
	KeyFavoriteBooks = "favorite_books"
	KeyAPIKey        = "api_key"
	KeySearchHistory = "search_history"
)

// Backend names
const (
	TypeSQLite = "sqlite"
	TypeFile   = "file"
	TypeMemory = "memory"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("storage: store is closed")

// Listener receives the new value of a key after a write; value is nil after a delete
type Listener func(value []byte)

// Store is a persistent key-value store with change notification.
// Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Subscribe registers fn for changes of key and returns a function that removes it
	Subscribe(key string, fn Listener) (unsubscribe func())
	Close() error
}

// Open creates the backend named by storeType at path
func Open(storeType, path string, log *logger.Logger) (Store, error) {
	switch storeType {
	case TypeSQLite, "":
		return NewSQLiteStore(path, log)
	case TypeFile:
		return NewFileStore(path, log)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", storeType)
	}
}

// GetJSON decodes the value stored at key into target.
// It reports false without error when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, target interface{}) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it at key
func SetJSON(ctx context.Context, s Store, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// hub fans out change notifications to subscribers
type hub struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]Listener
}

func (h *hub) subscribe(key string, fn Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listeners == nil {
		h.listeners = make(map[string]map[int]Listener)
	}
	if h.listeners[key] == nil {
		h.listeners[key] = make(map[int]Listener)
	}
	id := h.nextID
	h.nextID++
	h.listeners[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[key], id)
			if len(h.listeners[key]) == 0 {
				delete(h.listeners, key)
			}
		})
	}
}

// publish calls listeners outside the hub lock so they may read the store
func (h *hub) publish(key string, value []byte) {
	h.mu.Lock()
	fns := make([]Listener, 0, len(h.listeners[key]))
	for _, fn := range h.listeners[key] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		var v []byte
		if value != nil {
			v = append([]byte(nil), value...)
		}
		fn(v)
	}
}
