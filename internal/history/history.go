// Package history keeps the most recent search queries.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/storage"
)

// DefaultLimit is how many queries are kept when no limit is configured
const DefaultLimit = 50

// History is an ordered list of queries, most recent first, without duplicates
type History struct {
	mu      sync.RWMutex
	store   storage.Store
	limit   int
	entries []string
	logger  *logger.Logger
}

// New loads the history from store. limit <= 0 uses DefaultLimit.
func New(ctx context.Context, store storage.Store, limit int, log *logger.Logger) (*History, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = logger.Get()
	}

	h := &History{store: store, limit: limit, logger: log}

	var entries []string
	if _, err := storage.GetJSON(ctx, store, storage.KeySearchHistory, &entries); err != nil {
		// a corrupt history is not worth failing startup for
		log.Warn("Discarding unreadable search history", map[string]interface{}{"error": err.Error()})
		entries = nil
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	h.entries = entries
	return h, nil
}

// Record moves query to the front. Blank queries are ignored.
func (h *History) Record(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]string, 0, len(h.entries)+1)
	next = append(next, query)
	for _, e := range h.entries {
		if !strings.EqualFold(e, query) {
			next = append(next, e)
		}
	}
	if len(next) > h.limit {
		next = next[:h.limit]
	}

	if err := storage.SetJSON(ctx, h.store, storage.KeySearchHistory, next); err != nil {
		return fmt.Errorf("failed to save search history: %w", err)
	}
	h.entries = next
	return nil
}

// List returns a copy of the entries, most recent first
func (h *History) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.entries...)
}

// Clear removes every entry
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.store.Delete(ctx, storage.KeySearchHistory); err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	h.entries = nil
	return nil
}
