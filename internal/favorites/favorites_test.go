package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/drallgood/gutendex-nexus/internal/notify"
	"github.com/drallgood/gutendex-nexus/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves books by id and fails for ids in fail
type fakeFetcher struct {
	fail  map[int]bool
	calls int32
}

func (f *fakeFetcher) GetBook(ctx context.Context, id int) (*models.Book, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail[id] {
		return nil, fmt.Errorf("book %d: status 500", id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.Book{ID: id, Title: fmt.Sprintf("Book %d", id)}, nil
}

// nilFetcher answers some ids with neither a book nor an error
type nilFetcher struct {
	empty map[int]bool
}

func (f nilFetcher) GetBook(ctx context.Context, id int) (*models.Book, error) {
	if f.empty[id] {
		return nil, nil
	}
	return &models.Book{ID: id}, nil
}

func newStore(t *testing.T, kv storage.Store, policy string) (*Store, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	s, err := New(context.Background(), kv, Options{
		Policy:   policy,
		Notifier: rec,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, rec
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s, _ := newStore(t, kv, "")

	added, err := s.Toggle(ctx, 1234)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, s.Contains(1234))
	assert.Equal(t, []int{1234}, s.IDs())

	var persisted []int
	_, err = storage.GetJSON(ctx, kv, storage.KeyFavoriteBooks, &persisted)
	require.NoError(t, err)
	assert.Equal(t, []int{1234}, persisted)

	added, err = s.Toggle(ctx, 1234)
	require.NoError(t, err)
	assert.False(t, added)
	assert.False(t, s.Contains(1234))
	assert.Empty(t, s.IDs())
}

func TestToggleTwiceIsIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, storage.NewMemoryStore(), "")
	for _, id := range []int{5, 7, 9} {
		_, err := s.Toggle(ctx, id)
		require.NoError(t, err)
	}
	before := s.IDs()

	_, err := s.Toggle(ctx, 7)
	require.NoError(t, err)
	_, err = s.Toggle(ctx, 7)
	require.NoError(t, err)

	assert.ElementsMatch(t, before, s.IDs())
	assert.Equal(t, []int{5, 9, 7}, s.IDs(), "re-added id goes to the end")
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, storage.NewMemoryStore(), "")
	for _, id := range []int{1, 2, 3} {
		_, err := s.Toggle(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, s.Remove(ctx, 2))
	require.NoError(t, s.Remove(ctx, 42))
	assert.Equal(t, []int{1, 3}, s.IDs())
	assert.Equal(t, 2, s.Count())

	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, s.Count())
}

func TestLoadsFromStoreAndFollowsExternalWrites(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, storage.KeyFavoriteBooks, []byte("[84,1342,84]")))

	s, _ := newStore(t, kv, "")
	assert.Equal(t, []int{84, 1342}, s.IDs())

	require.NoError(t, kv.Set(ctx, storage.KeyFavoriteBooks, []byte("[11]")))
	assert.Equal(t, []int{11}, s.IDs())

	require.NoError(t, kv.Set(ctx, storage.KeyFavoriteBooks, []byte("garbage")))
	assert.Equal(t, []int{11}, s.IDs(), "unreadable updates are ignored")

	require.NoError(t, kv.Delete(ctx, storage.KeyFavoriteBooks))
	assert.Empty(t, s.IDs())
}

func TestNew_InvalidPolicy(t *testing.T) {
	_, err := New(context.Background(), storage.NewMemoryStore(), Options{Policy: "best_effort"})
	assert.Error(t, err)
}

func TestConcurrentToggles(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, storage.NewMemoryStore(), "")

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := s.Toggle(ctx, id)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, s.Count())
}

func TestBulkLoad_AllSucceed(t *testing.T) {
	s, rec := newStore(t, storage.NewMemoryStore(), PolicyAllOrNothing)
	fetcher := &fakeFetcher{}

	var mu sync.Mutex
	var progress []int
	result, err := s.BulkLoad(context.Background(), fetcher, []int{3, 1, 2}, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	require.Len(t, result.Books, 3)
	assert.Equal(t, 3, result.Books[0].ID)
	assert.Equal(t, 1, result.Books[1].ID)
	assert.Equal(t, 2, result.Books[2].ID)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress)
	assert.Empty(t, rec.All())
}

func TestBulkLoad_AllOrNothing(t *testing.T) {
	s, rec := newStore(t, storage.NewMemoryStore(), PolicyAllOrNothing)
	fetcher := &fakeFetcher{fail: map[int]bool{2: true}}

	result, err := s.BulkLoad(context.Background(), fetcher, []int{1, 2, 3}, nil)
	require.Error(t, err)
	assert.Empty(t, result.Books)

	var bulkErr *BulkLoadError
	require.True(t, errors.As(err, &bulkErr))
	assert.Contains(t, bulkErr.Failed, 2)

	assert.Equal(t, 1, rec.Count(notify.LevelError))
}

func TestBulkLoad_Partial(t *testing.T) {
	s, rec := newStore(t, storage.NewMemoryStore(), PolicyPartial)
	fetcher := &fakeFetcher{fail: map[int]bool{2: true}}

	result, err := s.BulkLoad(context.Background(), fetcher, []int{1, 2, 3}, nil)
	require.Error(t, err)

	var bulkErr *BulkLoadError
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, []int{2}, bulkErr.Failed)
	assert.Contains(t, err.Error(), "[2]")

	require.Len(t, result.Books, 2)
	assert.Equal(t, 1, result.Books[0].ID)
	assert.Equal(t, 3, result.Books[1].ID)
	assert.Equal(t, []int{2}, result.Failed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fetcher.calls))
	assert.Equal(t, 1, rec.Count(notify.LevelError))
}

func TestBulkLoad_EmptyBookIsAFailure(t *testing.T) {
	fetcher := nilFetcher{empty: map[int]bool{2: true}}

	t.Run("all or nothing", func(t *testing.T) {
		s, rec := newStore(t, storage.NewMemoryStore(), PolicyAllOrNothing)

		var result *LoadResult
		var err error
		require.NotPanics(t, func() {
			result, err = s.BulkLoad(context.Background(), fetcher, []int{1, 2, 3}, nil)
		})
		require.ErrorIs(t, err, ErrEmptyBook)
		assert.Empty(t, result.Books)
		assert.Equal(t, 1, rec.Count(notify.LevelError))
	})

	t.Run("partial", func(t *testing.T) {
		s, _ := newStore(t, storage.NewMemoryStore(), PolicyPartial)

		result, err := s.BulkLoad(context.Background(), fetcher, []int{1, 2, 3}, nil)
		require.ErrorIs(t, err, ErrEmptyBook)
		assert.Equal(t, []int{2}, result.Failed)
		assert.Len(t, result.Books, 2)
	})
}

func TestBulkLoad_Empty(t *testing.T) {
	s, rec := newStore(t, storage.NewMemoryStore(), "")
	fetcher := &fakeFetcher{}

	result, err := s.BulkLoad(context.Background(), fetcher, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Books)
	assert.Zero(t, atomic.LoadInt32(&fetcher.calls))
	assert.Empty(t, rec.All())
}
