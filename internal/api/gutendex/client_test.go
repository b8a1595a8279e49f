package gutendex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(&ClientConfig{
		BaseURL:   server.URL,
		Timeout:   5 * time.Second,
		RateLimit: time.Millisecond,
		Burst:     100,
		CacheTTL:  time.Minute,
	}, logger.Nop())
	return client, server
}

func TestSearchParams(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		page    int
		filters models.SearchFilters
		want    url.Values
	}{
		{
			name:    "query only",
			query:   "  Alice in Wonderland ",
			page:    1,
			filters: models.DefaultFilters(),
			want:    url.Values{"search": {"Alice in Wonderland"}, "page": {"1"}},
		},
		{
			name:    "subject only",
			page:    1,
			filters: models.SearchFilters{Subject: "science", SortBy: models.DefaultSort},
			want:    url.Values{"topic": {"science"}, "page": {"1"}},
		},
		{
			name:    "author merged into search",
			query:   "poems",
			page:    2,
			filters: models.SearchFilters{Author: "Whitman"},
			want:    url.Values{"search": {"poems Whitman"}, "page": {"2"}},
		},
		{
			name:    "author only",
			page:    1,
			filters: models.SearchFilters{Author: "Austen"},
			want:    url.Values{"search": {"Austen"}, "page": {"1"}},
		},
		{
			name:  "every filter",
			query: "war",
			page:  3,
			filters: models.SearchFilters{
				Language:  "en,fr",
				Subject:   "history",
				Copyright: models.CopyrightPublic,
				SortBy:    models.SortTitle,
			},
			want: url.Values{
				"search":    {"war"},
				"languages": {"en,fr"},
				"topic":     {"history"},
				"copyright": {"false"},
				"sort":      {"title"},
				"page":      {"3"},
			},
		},
		{
			name:    "page floor",
			query:   "x",
			page:    0,
			filters: models.SearchFilters{},
			want:    url.Values{"search": {"x"}, "page": {"1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SearchParams(tt.query, tt.page, tt.filters)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got["search"], len(tt.want["search"]))
		})
	}
}

func TestSearchURL(t *testing.T) {
	got := SearchURL("https://gutendex.com/", "alice", 1, models.DefaultFilters())
	assert.Equal(t, "https://gutendex.com/books/?page=1&search=alice", got)
}

func TestSearchBooks_AliceScenario(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/", r.URL.Path)
		assert.Equal(t, "Alice in Wonderland", r.URL.Query().Get("search"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"count": 2,
			"next": null,
			"previous": null,
			"results": [
				{"id": 11, "title": "Alice's Adventures in Wonderland",
				 "authors": [{"name": "Carroll, Lewis", "birth_year": 1832, "death_year": 1898}],
				 "languages": ["en"], "subjects": ["Fantasy fiction"], "copyright": false,
				 "formats": {"application/epub+zip": "https://example.org/11.epub"},
				 "download_count": 50000},
				{"id": 28885, "title": "Alice's Adventures in Wonderland (illustrated)",
				 "authors": [{"name": "Carroll, Lewis"}], "languages": ["en"],
				 "formats": {}, "download_count": 1200}
			]
		}`)
	})

	resp, err := client.SearchBooks(context.Background(), "Alice in Wonderland", 1, models.DefaultFilters())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Nil(t, resp.Next)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 11, resp.Results[0].ID)
	assert.Equal(t, "Carroll, Lewis", resp.Results[0].AuthorNames())
	require.NotNil(t, resp.Results[0].Authors[0].BirthYear)
	assert.Equal(t, 1832, *resp.Results[0].Authors[0].BirthYear)
	assert.True(t, resp.Results[0].IsPublicDomain())

	page := models.SearchResultPage{Total: resp.Count, Page: 1, Books: resp.Results}
	assert.False(t, page.HasMore())
}

func TestSearchBooks_SubjectOnly(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "science", q.Get("topic"))
		_, hasSearch := q["search"]
		assert.False(t, hasSearch)
		fmt.Fprint(w, `{"count": 0, "next": null, "previous": null, "results": []}`)
	})

	resp, err := client.SearchBooks(context.Background(), "", 1, models.SearchFilters{Subject: "science"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Count)
}

func TestSearchBooks_UnconstrainedNeverHitsNetwork(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	tests := []struct {
		name    string
		query   string
		filters models.SearchFilters
	}{
		{"blank query with language", "   ", models.SearchFilters{Language: "en"}},
		{"blank author", "", models.SearchFilters{Author: "   "}},
		{"blank subject", "", models.SearchFilters{Subject: " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SearchBooks(context.Background(), tt.query, 1, tt.filters)
			assert.ErrorIs(t, err, ErrUnconstrainedSearch)
		})
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSearchParams_TrimsSubject(t *testing.T) {
	params := SearchParams("", 1, models.SearchFilters{Subject: "  science "})
	assert.Equal(t, "science", params.Get("topic"))
	assert.False(t, params.Has("search"))
}

func TestSearchBooks_Errors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := client.SearchBooks(context.Background(), "x", 1, models.SearchFilters{})

		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Equal(t, "boom", statusErr.Body)
	})

	t.Run("decode", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"count": "many"`)
		})
		_, err := client.SearchBooks(context.Background(), "x", 1, models.SearchFilters{})

		var decodeErr *DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})

	t.Run("network", func(t *testing.T) {
		client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		server.Close()
		_, err := client.SearchBooks(context.Background(), "x", 1, models.SearchFilters{})

		var netErr *NetworkError
		assert.ErrorAs(t, err, &netErr)
	})

	t.Run("rate limited is not retried", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		before := client.rateLimiter.GetRate()
		_, err := client.SearchBooks(context.Background(), "x", 1, models.SearchFilters{})

		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Greater(t, client.rateLimiter.GetRate(), before)
	})
}

func TestGetBook(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/books/1342":
			fmt.Fprint(w, `{"id": 1342, "title": "Pride and Prejudice", "authors": [{"name": "Austen, Jane"}],
				"formats": {"text/plain; charset=us-ascii": "https://example.org/1342.txt"}, "download_count": 9}`)
		default:
			http.NotFound(w, r)
		}
	})

	book, err := client.GetBook(context.Background(), 1342)
	require.NoError(t, err)
	assert.Equal(t, "Pride and Prejudice", book.Title)
	assert.Equal(t, "https://www.gutenberg.org/ebooks/1342", book.GutenbergURL())

	again, err := client.GetBook(context.Background(), 1342)
	require.NoError(t, err)
	assert.Equal(t, book.Title, again.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup is served from cache")

	client.ClearCache()
	_, err = client.GetBook(context.Background(), 1342)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = client.GetBook(context.Background(), 99999)
	assert.True(t, IsNotFound(err))

	_, err = client.GetBook(context.Background(), 0)
	assert.Error(t, err)
}

func TestGetBook_CacheDisabled(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"id": 5, "title": "x"}`)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL, RateLimit: time.Millisecond, Burst: 10}, logger.Nop())
	for i := 0; i < 2; i++ {
		_, err := client.GetBook(context.Background(), 5)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCancelledContext(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count": 0, "results": []}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SearchBooks(ctx, "x", 1, models.SearchFilters{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(nil, logger.Nop())
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, DefaultUserAgent, client.userAgent)
	assert.NotNil(t, client.books)
}

func TestSearchBooks_ForwardsRequestID(t *testing.T) {
	var got atomic.Value
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Request-ID"))
		fmt.Fprint(w, `{"count": 0, "results": []}`)
	})

	ctx, id, _ := logger.WithRequestID(context.Background(), logger.Nop())
	_, err := client.SearchBooks(ctx, "alice", 1, models.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, id, got.Load())

	_, err = client.SearchBooks(context.Background(), "alice", 1, models.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, "", got.Load())
}
