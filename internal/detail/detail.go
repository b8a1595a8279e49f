// Package detail tracks which single book, if any, is shown in detail.
package detail

import (
	"sync"

	"github.com/drallgood/gutendex-nexus/internal/models"
)

// Mode is what the results area shows
type Mode int

const (
	ModeList Mode = iota
	ModeDetail
)

func (m Mode) String() string {
	if m == ModeDetail {
		return "detail"
	}
	return "list"
}

// Selector holds at most one selected book
type Selector struct {
	mu       sync.RWMutex
	selected *models.Book
}

func NewSelector() *Selector {
	return &Selector{}
}

// Select shows book in detail, replacing any previous selection
func (s *Selector) Select(book models.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = &book
}

// Clear returns to the list
func (s *Selector) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Selected returns the selected book
func (s *Selector) Selected() (models.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return models.Book{}, false
	}
	return *s.selected, true
}

func (s *Selector) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return ModeList
	}
	return ModeDetail
}
