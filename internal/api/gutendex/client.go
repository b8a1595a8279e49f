// Package gutendex is a client for the Gutendex REST catalog of Project Gutenberg books.
package gutendex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/drallgood/gutendex-nexus/internal/cache"
	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/metrics"
	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/drallgood/gutendex-nexus/internal/util"
)

const (
	DefaultBaseURL   = "https://gutendex.com"
	DefaultTimeout   = 30 * time.Second
	DefaultCacheTTL  = 10 * time.Minute
	DefaultUserAgent = "gutendex-nexus/dev"

	endpointSearch = "search"
	endpointBook   = "book"

	// maxErrorBody caps how much of an error response is kept on HTTPStatusError
	maxErrorBody = 512
)

// Catalog is the read side of the client used by the controller and favorites
type Catalog interface {
	SearchBooks(ctx context.Context, query string, page int, filters models.SearchFilters) (*models.SearchResponse, error)
	GetBook(ctx context.Context, id int) (*models.Book, error)
}

// ClientConfig holds the configuration for the Gutendex client
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit time.Duration
	Burst     int
	// CacheTTL bounds how long GetBook results are reused; 0 disables the cache
	CacheTTL  time.Duration
	UserAgent string
}

// DefaultClientConfig returns a ClientConfig with default values
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		RateLimit: util.DefaultRate,
		Burst:     util.DefaultBurst,
		CacheTTL:  DefaultCacheTTL,
		UserAgent: DefaultUserAgent,
	}
}

// Client talks to the Gutendex catalog. It never retries.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	logger      *logger.Logger
	rateLimiter *util.RateLimiter
	books       cache.Cache[int, models.Book]
	cacheTTL    time.Duration
}

// NewClient creates a new Gutendex client. A nil cfg uses the defaults.
func NewClient(cfg *ClientConfig, log *logger.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if log == nil {
		log = logger.Get()
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     baseURL,
		userAgent:   userAgent,
		logger:      log.WithFields(map[string]interface{}{"component": "gutendex"}),
		rateLimiter: util.NewRateLimiter(cfg.RateLimit, cfg.Burst),
		cacheTTL:    cfg.CacheTTL,
	}
	if cfg.CacheTTL > 0 {
		c.books = cache.NewMemoryCache[int, models.Book](log)
	}

	c.logger.Debug("Created Gutendex client", map[string]interface{}{
		"base_url":   baseURL,
		"timeout":    timeout.String(),
		"rate_limit": cfg.RateLimit.String(),
		"cache_ttl":  cfg.CacheTTL.String(),
	})
	return c
}

// SearchParams builds the query string of a /books/ request.
// The author filter has no parameter of its own and is folded into search.
func SearchParams(query string, page int, filters models.SearchFilters) url.Values {
	params := url.Values{}

	search := strings.TrimSpace(query)
	if author := strings.TrimSpace(filters.Author); author != "" {
		search = strings.TrimSpace(search + " " + author)
	}
	if search != "" {
		params.Set("search", search)
	}
	if filters.Language != "" {
		params.Set("languages", filters.Language)
	}
	if subject := strings.TrimSpace(filters.Subject); subject != "" {
		params.Set("topic", subject)
	}
	if filters.Copyright != "" {
		params.Set("copyright", filters.Copyright)
	}
	if filters.SortBy != "" && filters.SortBy != models.DefaultSort {
		params.Set("sort", filters.SortBy)
	}
	if page < 1 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	return params
}

// SearchURL returns the full request URL for a search against baseURL
func SearchURL(baseURL, query string, page int, filters models.SearchFilters) string {
	return strings.TrimSuffix(baseURL, "/") + "/books/?" + SearchParams(query, page, filters).Encode()
}

// SearchURL returns the request URL this client would use for a search
func (c *Client) SearchURL(query string, page int, filters models.SearchFilters) string {
	return SearchURL(c.baseURL, query, page, filters)
}

// SearchBooks fetches one page of search results
func (c *Client) SearchBooks(ctx context.Context, query string, page int, filters models.SearchFilters) (*models.SearchResponse, error) {
	if !filters.Searchable(query) {
		return nil, ErrUnconstrainedSearch
	}

	u := c.SearchURL(query, page, filters)
	var resp models.SearchResponse
	if err := c.get(ctx, endpointSearch, u, &resp); err != nil {
		return nil, err
	}

	c.log(ctx).Debug("Search completed", map[string]interface{}{
		"page":     page,
		"count":    resp.Count,
		"returned": len(resp.Results),
	})
	return &resp, nil
}

// GetBook fetches a single book by its Gutenberg id
func (c *Client) GetBook(ctx context.Context, id int) (*models.Book, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid book id %d", id)
	}

	if c.books != nil {
		if book, ok := c.books.Get(id); ok {
			metrics.CatalogRequestsTotal.WithLabelValues(endpointBook, metrics.OutcomeCacheHit).Inc()
			c.log(ctx).Debug("Book served from cache", map[string]interface{}{"book_id": id})
			return &book, nil
		}
	}

	u := fmt.Sprintf("%s/books/%d", c.baseURL, id)
	var book models.Book
	if err := c.get(ctx, endpointBook, u, &book); err != nil {
		return nil, err
	}

	if c.books != nil {
		c.books.Set(id, book, c.cacheTTL)
	}
	return &book, nil
}

// ClearCache drops every cached book
func (c *Client) ClearCache() {
	if c.books != nil {
		c.books.Clear()
	}
}

func (c *Client) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l.WithFields(map[string]interface{}{"component": "gutendex"})
	}
	return c.logger
}

func (c *Client) get(ctx context.Context, endpoint, u string, target interface{}) error {
	log := c.log(ctx)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return &NetworkError{URL: u, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	log.Debug("Making request to Gutendex", map[string]interface{}{
		"endpoint": endpoint,
		"url":      u,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.CatalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues(endpoint, metrics.OutcomeNetwork).Inc()
		log.Warn("Catalog request failed", map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		return &NetworkError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		outcome := metrics.OutcomeHTTPStatus
		if resp.StatusCode == http.StatusTooManyRequests {
			outcome = metrics.OutcomeRateLimited
			backoff := c.rateLimiter.OnRateLimit(util.ParseRetryAfter(resp.Header))
			log.Warn("Catalog rate limit hit, slowing down", map[string]interface{}{
				"backoff": backoff.String(),
			})
		}
		metrics.CatalogRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
		log.Warn("Catalog returned an error status", map[string]interface{}{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		})
		return &HTTPStatusError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues(endpoint, metrics.OutcomeDecode).Inc()
		return &DecodeError{URL: u, Err: err}
	}

	metrics.CatalogRequestsTotal.WithLabelValues(endpoint, metrics.OutcomeSuccess).Inc()
	log.Debug("Catalog request succeeded", map[string]interface{}{
		"endpoint":    endpoint,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
