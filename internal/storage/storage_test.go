package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name   string
	open   func(t *testing.T, path string) Store
	reopen bool
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			open: func(t *testing.T, _ string) Store { return NewMemoryStore() },
		},
		{
			name: "file",
			open: func(t *testing.T, path string) Store {
				s, err := NewFileStore(filepath.Join(path, "nexus.json"), logger.Nop())
				require.NoError(t, err)
				return s
			},
			reopen: true,
		},
		{
			name: "sqlite",
			open: func(t *testing.T, path string) Store {
				s, err := NewSQLiteStore(filepath.Join(path, "nexus.db"), logger.Nop())
				require.NoError(t, err)
				return s
			},
			reopen: true,
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, t.TempDir())
			defer s.Close()

			_, ok, err := s.Get(ctx, KeyFavoriteBooks)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, KeyFavoriteBooks, []byte("[1,2]")))
			v, ok, err := s.Get(ctx, KeyFavoriteBooks)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "[1,2]", string(v))

			require.NoError(t, s.Set(ctx, KeyFavoriteBooks, []byte("[3]")))
			v, _, err = s.Get(ctx, KeyFavoriteBooks)
			require.NoError(t, err)
			assert.Equal(t, "[3]", string(v))

			require.NoError(t, s.Delete(ctx, KeyFavoriteBooks))
			_, ok, err = s.Get(ctx, KeyFavoriteBooks)
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Delete(ctx, "never-set"))
		})
	}
}

func TestStoreSubscribe(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, t.TempDir())
			defer s.Close()

			var mu sync.Mutex
			var seen []string
			unsubscribe := s.Subscribe(KeyAPIKey, func(value []byte) {
				mu.Lock()
				defer mu.Unlock()
				if value == nil {
					seen = append(seen, "<deleted>")
					return
				}
				seen = append(seen, string(value))
			})

			require.NoError(t, s.Set(ctx, KeyAPIKey, []byte("a")))
			require.NoError(t, s.Set(ctx, KeySearchHistory, []byte("[]")))
			require.NoError(t, s.Delete(ctx, KeyAPIKey))

			unsubscribe()
			unsubscribe()
			require.NoError(t, s.Set(ctx, KeyAPIKey, []byte("b")))

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, []string{"a", "<deleted>"}, seen)
		})
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		if !b.reopen {
			continue
		}
		t.Run(b.name, func(t *testing.T) {
			dir := t.TempDir()

			s := b.open(t, dir)
			require.NoError(t, SetJSON(ctx, s, KeyFavoriteBooks, []int{1342, 11}))
			require.NoError(t, s.Close())

			s = b.open(t, dir)
			defer s.Close()

			var ids []int
			ok, err := GetJSON(ctx, s, KeyFavoriteBooks, &ids)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []int{1342, 11}, ids)
		})
	}
}

func TestGetJSON_Invalid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, KeyFavoriteBooks, []byte("not json")))

	var ids []int
	ok, err := GetJSON(ctx, s, KeyFavoriteBooks, &ids)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", nil), ErrClosed)
}

func TestFileStore_UnversionedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"favorite_books":"[84,1342]","api_key":""}`), 0644))

	s, err := NewFileStore(path, logger.Nop())
	require.NoError(t, err)

	v, ok, err := s.Get(context.Background(), KeyFavoriteBooks)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[84,1342]", string(v))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "1"`)
}

func TestFileStore_BadDocuments(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err := NewFileStore(bad, logger.Nop())
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version":"9","entries":{}}`), 0644))
	_, err = NewFileStore(future, logger.Nop())
	assert.ErrorContains(t, err, "unsupported store file version")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(TypeMemory, "", logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(TypeFile, filepath.Join(dir, "s.json"), logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(TypeSQLite, filepath.Join(dir, "s.db"), logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", "", logger.Nop())
	assert.Error(t, err)
}
