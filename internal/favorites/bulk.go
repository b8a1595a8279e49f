package favorites

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/drallgood/gutendex-nexus/internal/metrics"
	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/drallgood/gutendex-nexus/internal/notify"
)

// ErrEmptyBook is reported for a lookup that returned neither a book nor an error
var ErrEmptyBook = errors.New("empty book response")

// BookFetcher looks up a single book
type BookFetcher interface {
	GetBook(ctx context.Context, id int) (*models.Book, error)
}

// LoadResult is the outcome of a bulk load
type LoadResult struct {
	// Books in favorite order
	Books []models.Book
	// Failed ids in favorite order; only filled under the partial policy
	Failed []int
}

// BulkLoadError reports the ids that could not be loaded
type BulkLoadError struct {
	Failed []int
	Err    error
}

func (e *BulkLoadError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, id := range e.Failed {
		ids[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("failed to load favorite books [%s]: %v", strings.Join(ids, ", "), e.Err)
}

func (e *BulkLoadError) Unwrap() error {
	return e.Err
}

// Progress is called after each finished lookup
type Progress func(done, total int)

// BulkLoad fetches every book in ids concurrently and waits for all of them.
// Under all_or_nothing the first failure cancels the rest and no books are
// returned; under partial the books that loaded are returned together with a
// *BulkLoadError. Either way at most one error notification is sent.
func (s *Store) BulkLoad(ctx context.Context, fetcher BookFetcher, ids []int, progress Progress) (*LoadResult, error) {
	if len(ids) == 0 {
		return &LoadResult{}, nil
	}

	var (
		mu   sync.Mutex
		done int
	)
	tick := func() {
		if progress == nil {
			return
		}
		mu.Lock()
		done++
		n := done
		mu.Unlock()
		progress(n, len(ids))
	}

	if s.policy == PolicyPartial {
		return s.bulkLoadPartial(ctx, fetcher, ids, tick)
	}

	books := make([]models.Book, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, id := range ids {
		g.Go(func() error {
			defer tick()
			book, err := fetcher.GetBook(gctx, id)
			if err == nil && book == nil {
				err = ErrEmptyBook
			}
			if err != nil {
				return &BulkLoadError{Failed: []int{id}, Err: err}
			}
			books[i] = *book
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.FavoritesBulkLoadTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.Warn("Favorites bulk load aborted", map[string]interface{}{
			"requested": len(ids),
			"error":     err.Error(),
		})
		s.notifier.Notify(notify.Error("Favorites", "Could not load favorite books. Please try again."))
		return &LoadResult{}, err
	}

	metrics.FavoritesBulkLoadTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return &LoadResult{Books: books}, nil
}

func (s *Store) bulkLoadPartial(ctx context.Context, fetcher BookFetcher, ids []int, tick func()) (*LoadResult, error) {
	books := make([]*models.Book, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for i, id := range ids {
		g.Go(func() error {
			defer tick()
			books[i], errs[i] = fetcher.GetBook(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	result := &LoadResult{}
	var firstErr error
	for i, id := range ids {
		if errs[i] != nil || books[i] == nil {
			result.Failed = append(result.Failed, id)
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		result.Books = append(result.Books, *books[i])
	}

	if len(result.Failed) == 0 {
		metrics.FavoritesBulkLoadTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		return result, nil
	}
	if firstErr == nil {
		firstErr = ErrEmptyBook
	}

	metrics.FavoritesBulkLoadTotal.WithLabelValues(metrics.OutcomePartial).Inc()
	s.logger.Warn("Some favorite books could not be loaded", map[string]interface{}{
		"requested": len(ids),
		"failed":    result.Failed,
	})
	s.notifier.Notify(notify.Error("Favorites",
		fmt.Sprintf("Could not load %d of %d favorite books.", len(result.Failed), len(ids))))
	return result, &BulkLoadError{Failed: result.Failed, Err: firstErr}
}
