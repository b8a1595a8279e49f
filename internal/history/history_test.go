package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h, err := New(ctx, store, 3, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, h.Record(ctx, "alice"))
	require.NoError(t, h.Record(ctx, "  "))
	require.NoError(t, h.Record(ctx, "moby dick"))
	require.NoError(t, h.Record(ctx, "Alice"))
	assert.Equal(t, []string{"Alice", "moby dick"}, h.List())

	require.NoError(t, h.Record(ctx, "war"))
	require.NoError(t, h.Record(ctx, "peace"))
	assert.Equal(t, []string{"peace", "war", "Alice"}, h.List())

	reloaded, err := New(ctx, store, 3, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, h.List(), reloaded.List())
}

func TestNew_TruncatesAndTolerates(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	var many []string
	for i := 0; i < 10; i++ {
		many = append(many, fmt.Sprintf("q%d", i))
	}
	require.NoError(t, storage.SetJSON(ctx, store, storage.KeySearchHistory, many))

	h, err := New(ctx, store, 4, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"q0", "q1", "q2", "q3"}, h.List())

	require.NoError(t, store.Set(ctx, storage.KeySearchHistory, []byte("{broken")))
	h, err = New(ctx, store, 0, logger.Nop())
	require.NoError(t, err)
	assert.Empty(t, h.List())
	assert.Equal(t, DefaultLimit, h.limit)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h, err := New(ctx, store, 0, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, h.Record(ctx, "alice"))
	require.NoError(t, h.Clear(ctx))
	assert.Empty(t, h.List())

	_, ok, err := store.Get(ctx, storage.KeySearchHistory)
	require.NoError(t, err)
	assert.False(t, ok)
}
