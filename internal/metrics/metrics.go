package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess     = "success"
	OutcomeNetwork     = "network_error"
	OutcomeHTTPStatus  = "http_error"
	OutcomeRateLimited = "rate_limited"
	OutcomeDecode      = "decode_error"
	OutcomeCacheHit    = "cache_hit"
	OutcomePartial     = "partial"
	OutcomeFailed      = "failed"
)

var (
	CatalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gutendex_catalog_requests_total",
		Help: "Total number of requests issued to the Gutendex catalog",
	}, []string{"endpoint", "outcome"})

	CatalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gutendex_catalog_request_duration_seconds",
		Help:    "Duration of catalog requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	FavoritesBulkLoadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gutendex_favorites_bulk_load_total",
		Help: "Total number of favorites bulk loads by outcome",
	}, []string{"outcome"})
)
