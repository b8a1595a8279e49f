package detail

import (
	"testing"

	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSelector(t *testing.T) {
	s := NewSelector()
	assert.Equal(t, ModeList, s.Mode())
	_, ok := s.Selected()
	assert.False(t, ok)

	s.Select(models.Book{ID: 1, Title: "One"})
	s.Select(models.Book{ID: 2, Title: "Two"})
	assert.Equal(t, ModeDetail, s.Mode())
	book, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, 2, book.ID)

	s.Clear()
	assert.Equal(t, ModeList, s.Mode())
	assert.Equal(t, "list", s.Mode().String())
}
