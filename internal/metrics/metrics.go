package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamecatalog_provider_requests_total",
		Help: "Outbound provider requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gamecatalog_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a provider rate-limit token.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	RateLimitRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamecatalog_ratelimit_retries_total",
		Help: "Retries after a provider answered 429.",
	}, []string{"provider"})

	SyncItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamecatalog_sync_items_total",
		Help: "Batch sync items by outcome.",
	}, []string{"outcome"})

	DiscoveredEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamecatalog_discovered_entries_total",
		Help: "Catalog entries created by eager search discovery.",
	})
)
