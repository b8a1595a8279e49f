// Package favorites keeps the user's ordered set of favorite book ids.
package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/notify"
	"github.com/drallgood/gutendex-nexus/internal/storage"
)

// Bulk-load policies
const (
	PolicyAllOrNothing = "all_or_nothing"
	PolicyPartial      = "partial"
)

// DefaultMaxConcurrent bounds parallel lookups during a bulk load
const DefaultMaxConcurrent = 4

// Options configures a Store
type Options struct {
	Policy        string
	MaxConcurrent int
	Notifier      notify.Notifier
	Logger        *logger.Logger
}

// Store is the favorite set. Ids are unique and kept in insertion order.
// Only ids are persisted; book data is always fetched again.
type Store struct {
	mu  sync.RWMutex
	ids []int

	// writeMu serialises read-modify-write cycles; mu is not held while
	// persisting because the store calls subscribers synchronously
	writeMu sync.Mutex

	store         storage.Store
	policy        string
	maxConcurrent int
	notifier      notify.Notifier
	logger        *logger.Logger
	unsubscribe   func()
}

// New loads the favorite set from store and follows later writes to it
func New(ctx context.Context, store storage.Store, opts Options) (*Store, error) {
	if opts.Policy == "" {
		opts.Policy = PolicyAllOrNothing
	}
	if opts.Policy != PolicyAllOrNothing && opts.Policy != PolicyPartial {
		return nil, fmt.Errorf("unknown favorites load policy %q", opts.Policy)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}

	s := &Store{
		store:         store,
		policy:        opts.Policy,
		maxConcurrent: opts.MaxConcurrent,
		notifier:      opts.Notifier,
		logger:        opts.Logger.WithFields(map[string]interface{}{"component": "favorites"}),
	}

	data, ok, err := store.Get(ctx, storage.KeyFavoriteBooks)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	if ok {
		ids, err := decodeIDs(data)
		if err != nil {
			s.logger.Warn("Ignoring unreadable favorites", map[string]interface{}{"error": err.Error()})
		} else {
			s.ids = ids
		}
	}

	s.unsubscribe = store.Subscribe(storage.KeyFavoriteBooks, s.reload)
	return s, nil
}

// Close stops following the key-value store
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Policy returns the bulk-load policy in effect
func (s *Store) Policy() string {
	return s.policy
}

func (s *Store) reload(value []byte) {
	var ids []int
	if value != nil {
		decoded, err := decodeIDs(value)
		if err != nil {
			s.logger.Warn("Ignoring unreadable favorites update", map[string]interface{}{"error": err.Error()})
			return
		}
		ids = decoded
	}

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
}

// decodeIDs parses a JSON id list, dropping duplicates
func decodeIDs(data []byte) ([]int, error) {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(raw))
	ids := make([]int, 0, len(raw))
	for _, id := range raw {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Toggle adds id when absent and removes it when present.
// It reports whether id is a favorite afterwards.
func (s *Store) Toggle(ctx context.Context, id int) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.IDs()
	next := make([]int, 0, len(current)+1)
	added := true
	for _, existing := range current {
		if existing == id {
			added = false
			continue
		}
		next = append(next, existing)
	}
	if added {
		next = append(next, id)
	}

	if err := s.persist(ctx, next); err != nil {
		return !added, err
	}

	s.logger.Debug("Favorite toggled", map[string]interface{}{
		"book_id": id,
		"added":   added,
		"count":   len(next),
	})
	return added, nil
}

// Remove deletes id from the set; absent ids are ignored
func (s *Store) Remove(ctx context.Context, id int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.IDs()
	next := make([]int, 0, len(current))
	for _, existing := range current {
		if existing != id {
			next = append(next, existing)
		}
	}
	if len(next) == len(current) {
		return nil
	}
	return s.persist(ctx, next)
}

// Clear empties the set
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.persist(ctx, []int{})
}

func (s *Store) persist(ctx context.Context, ids []int) error {
	if err := storage.SetJSON(ctx, s.store, storage.KeyFavoriteBooks, ids); err != nil {
		return fmt.Errorf("failed to save favorites: %w", err)
	}
	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
	return nil
}

// Contains reports whether id is a favorite
func (s *Store) Contains(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// IDs returns a copy of the favorite ids in insertion order
func (s *Store) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.ids...)
}

// Count returns the number of favorites
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
