// Package search drives a search session: query, filters, pagination and the
// switch between the result list and a single book.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/drallgood/gutendex-nexus/internal/collections"
	"github.com/drallgood/gutendex-nexus/internal/detail"
	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/drallgood/gutendex-nexus/internal/notify"
)

// State of the controller
type State int

const (
	StateIdle State = iota
	StateSearching
	StateResults
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateResults:
		return "results"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Catalog is the part of the catalog client the controller needs
type Catalog interface {
	SearchBooks(ctx context.Context, query string, page int, filters models.SearchFilters) (*models.SearchResponse, error)
}

// Favorites is the part of the favorites store the controller needs
type Favorites interface {
	Toggle(ctx context.Context, id int) (bool, error)
	Contains(id int) bool
}

// HistoryRecorder records submitted queries
type HistoryRecorder interface {
	Record(ctx context.Context, query string) error
}

// Options configures a Controller. Catalog is required.
type Options struct {
	Catalog   Catalog
	Favorites Favorites
	History   HistoryRecorder
	Detail    *detail.Selector
	Notifier  notify.Notifier
	Logger    *logger.Logger
	// DefaultSort seeds the initial filters; empty uses the catalog default
	DefaultSort string
	// OnTransition observes every state change, including the transient
	// Failed state that immediately reverts
	OnTransition func(from, to State)
}

// View is an immutable snapshot for the display
type View struct {
	State    State
	Query    string
	Filters  models.SearchFilters
	Results  models.SearchResultPage
	Selected *models.Book
	Mode     detail.Mode
	Loading  bool
	// Pending counts outstanding requests, superseded ones included
	Pending int
	LastErr error
}

// HasMore reports whether "load more" should be offered
func (v View) HasMore() bool {
	return v.Results.HasMore()
}

// Controller is safe for concurrent use. Its lock is released while a
// request is in flight, so a newer search may be issued meanwhile; only the
// response of the newest search is applied.
type Controller struct {
	mu sync.Mutex

	catalog      Catalog
	favorites    Favorites
	history      HistoryRecorder
	detail       *detail.Selector
	notifier     notify.Notifier
	logger       *logger.Logger
	onTransition func(from, to State)

	state   State
	query   string
	filters models.SearchFilters
	results models.SearchResultPage
	lastErr error

	// query and filters of the last successful search, used by LoadMore
	lastQuery   string
	lastFilters models.SearchFilters
	hasSearched bool

	// seq numbers issued searches; a response is applied only if it carries the newest
	seq      uint64
	inFlight int

	// firstPage is the seq of the newest page-1 search still in flight, 0 if none
	firstPage uint64
}

// ErrNoCatalog is returned by New without a catalog
var ErrNoCatalog = errors.New("search controller needs a catalog")

// New creates a controller in the Idle state
func New(opts Options) (*Controller, error) {
	if opts.Catalog == nil {
		return nil, ErrNoCatalog
	}
	if opts.Detail == nil {
		opts.Detail = detail.NewSelector()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}

	filters := models.DefaultFilters()
	if opts.DefaultSort != "" {
		filters.SortBy = opts.DefaultSort
	}

	return &Controller{
		catalog:      opts.Catalog,
		favorites:    opts.Favorites,
		history:      opts.History,
		detail:       opts.Detail,
		notifier:     opts.Notifier,
		logger:       opts.Logger.WithFields(map[string]interface{}{"component": "search"}),
		onTransition: opts.OnTransition,
		state:        StateIdle,
		filters:      filters,
	}, nil
}

// SetQuery stores the query text without searching
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = q
}

// Submit starts a new search session at page 1.
// Without a query, subject or author nothing is sent and nil is returned.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	query, filters := c.query, c.filters
	c.mu.Unlock()

	if !filters.Searchable(query) {
		c.logger.Debug("Search skipped, nothing to search for")
		return nil
	}

	c.recordHistory(ctx, query)
	return c.run(ctx, query, 1, filters)
}

// SetFilters replaces the filters and searches again from page 1 when the
// result is searchable; otherwise the filters are only stored
func (c *Controller) SetFilters(ctx context.Context, f models.SearchFilters) error {
	if err := f.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.filters = f
	query := c.query
	c.mu.Unlock()

	if !f.Searchable(query) {
		return nil
	}
	return c.run(ctx, query, 1, f)
}

// ResetFilters restores the default filters
func (c *Controller) ResetFilters(ctx context.Context) error {
	return c.SetFilters(ctx, models.DefaultFilters())
}

// LoadMore fetches the next page of the last successful search and appends it.
// It is a no-op when there is nothing more to load or while a new search is
// still waiting for its first page.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasSearched || !c.results.HasMore() || c.firstPage != 0 {
		c.mu.Unlock()
		return nil
	}
	query, filters, page := c.lastQuery, c.lastFilters, c.results.Page+1
	c.mu.Unlock()

	return c.run(ctx, query, page, filters)
}

func (c *Controller) run(ctx context.Context, query string, page int, filters models.SearchFilters) error {
	ctx, requestID, log := logger.WithRequestID(ctx, c.logger)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.inFlight++
	if page <= 1 {
		c.firstPage = seq
	}
	c.transition(StateSearching)
	c.mu.Unlock()

	log.Debug("Searching catalog", map[string]interface{}{
		"query": query,
		"page":  page,
		"seq":   seq,
	})

	resp, err := c.catalog.SearchBooks(ctx, query, page, filters)

	c.mu.Lock()
	c.inFlight--
	if c.firstPage == seq {
		c.firstPage = 0
	}
	if seq != c.seq {
		latest := c.seq
		c.mu.Unlock()
		log.Debug("Discarding stale search response", map[string]interface{}{
			"seq":    seq,
			"latest": latest,
		})
		return nil
	}
	if err == nil && resp == nil {
		err = errors.New("empty response from catalog")
	}

	if err != nil {
		c.lastErr = err
		c.transition(StateFailed)
		c.transition(c.settledState())
		c.mu.Unlock()

		log.Warn("Search failed", map[string]interface{}{
			"error":      err.Error(),
			"request_id": requestID,
		})
		c.notifier.Notify(notify.Error("Search failed", "Could not search the catalog. Please try again."))
		return fmt.Errorf("search failed: %w", err)
	}

	books := resp.Results
	if page <= 1 {
		if resp.Count >= 0 && len(books) > resp.Count {
			books = books[:resp.Count]
		}
		c.results = models.SearchResultPage{
			Total: resp.Count,
			Page:  1,
			Books: append([]models.Book(nil), books...),
		}
	} else {
		merged := make([]models.Book, 0, len(c.results.Books)+len(books))
		merged = append(merged, c.results.Books...)
		merged = append(merged, books...)
		c.results = models.SearchResultPage{
			Total: resp.Count,
			Page:  page,
			Books: merged,
		}
	}
	c.lastQuery, c.lastFilters = query, filters
	c.hasSearched = true
	c.lastErr = nil
	c.transition(StateResults)
	shown, total := len(c.results.Books), c.results.Total
	c.mu.Unlock()

	log.Info("Search completed", map[string]interface{}{
		"page":  page,
		"shown": shown,
		"total": total,
	})
	return nil
}

// settledState is where a failed search returns to. Callers hold c.mu.
func (c *Controller) settledState() State {
	if c.hasSearched {
		return StateResults
	}
	return StateIdle
}

// transition changes state and reports it. Callers hold c.mu.
func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	if c.onTransition != nil && from != to {
		c.onTransition(from, to)
	}
}

func (c *Controller) recordHistory(ctx context.Context, query string) {
	if c.history == nil || strings.TrimSpace(query) == "" {
		return
	}
	if err := c.history.Record(ctx, query); err != nil {
		c.logger.Warn("Failed to record search history", map[string]interface{}{"error": err.Error()})
	}
}

// Select shows book in detail
func (c *Controller) Select(book models.Book) {
	c.detail.Select(book)
}

// SelectIndex shows the book at index i of the current results
func (c *Controller) SelectIndex(i int) (models.Book, error) {
	c.mu.Lock()
	if i < 0 || i >= len(c.results.Books) {
		n := len(c.results.Books)
		c.mu.Unlock()
		return models.Book{}, fmt.Errorf("no result at position %d (have %d)", i+1, n)
	}
	book := c.results.Books[i]
	c.mu.Unlock()

	c.detail.Select(book)
	return book, nil
}

// Back leaves detail mode; the result list is shown as it was
func (c *Controller) Back() {
	c.detail.Clear()
}

// ToggleFavorite flips the favorite flag of id and notifies the outcome
func (c *Controller) ToggleFavorite(ctx context.Context, id int) (bool, error) {
	if c.favorites == nil {
		return false, errors.New("favorites are not available")
	}

	added, err := c.favorites.Toggle(ctx, id)
	if err != nil {
		c.notifier.Notify(notify.Error("Favorites", "Could not update favorites. Please try again."))
		return added, err
	}

	if added {
		c.notifier.Notify(notify.Success("Favorites", "The book was added to your favorites."))
	} else {
		c.notifier.Notify(notify.Success("Favorites", "The book was removed from your favorites."))
	}
	return added, nil
}

// IsFavorite reports whether id is a favorite
func (c *Controller) IsFavorite(id int) bool {
	return c.favorites != nil && c.favorites.Contains(id)
}

// ApplyPortal resolves a portal and, for collection portals, starts the
// collection's search with fresh filters. It returns the destination so the
// display can switch panels.
func (c *Controller) ApplyPortal(ctx context.Context, portal string) (collections.Destination, error) {
	dest := collections.Resolve(portal)
	if !dest.Prefilled() {
		return dest, nil
	}

	c.mu.Lock()
	c.query = dest.Query
	filters := models.DefaultFilters()
	filters.SortBy = c.filters.SortBy
	filters.Subject = dest.Subject
	c.filters = filters
	c.mu.Unlock()

	c.detail.Clear()
	return dest, c.Submit(ctx)
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:   c.state,
		Query:   c.query,
		Filters: c.filters,
		Results: c.results.Clone(),
		Mode:    c.detail.Mode(),
		Loading: c.state == StateSearching,
		Pending: c.inFlight,
		LastErr: c.lastErr,
	}
	if book, ok := c.detail.Selected(); ok {
		v.Selected = &book
	}
	return v
}
