// Package metrics registers the Prometheus collectors for search, provider, store
// and streaming activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchOutcomes counts finished searches by the tier that answered them:
	// "cache", "live", "stale" or "none".
	SearchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_search_outcomes_total",
			Help: "Searches by answering tier",
		},
		[]string{"source"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dinescout_search_duration_seconds",
			Help:    "Duration of searches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_provider_failures_total",
			Help: "Place-search provider failures by kind",
		},
		[]string{"kind"}, // unreachable, bad_status, quota_exceeded, circuit_open
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_provider_retries_total",
			Help: "Retried provider calls",
		},
		[]string{"service"},
	)

	// LiveRecordsDropped counts provider records that never reached the store.
	LiveRecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_live_records_dropped_total",
			Help: "Provider records dropped before or during write-back",
		},
		[]string{"reason"}, // normalize, region, write
	)

	LiveRecordsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dinescout_live_records_stored_total",
			Help: "Provider records written to the entity store",
		},
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dinescout_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service"},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_stream_events_total",
			Help: "Events written to chat streams by type",
		},
		[]string{"type"}, // metadata, delta, extracted, error, done
	)

	ChatExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_chat_exchanges_total",
			Help: "Chat exchanges by outcome",
		},
		[]string{"outcome"}, // completed, upstream_error, client_gone, timeout
	)

	ExtractionDiscards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_extraction_discards_total",
			Help: "Extracted sections discarded by reason",
		},
		[]string{"reason"}, // no_coordinates, out_of_region
	)

	DiscoveryPlaces = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinescout_discovery_places_total",
			Help: "Places written by bulk discovery, by neighborhood",
		},
		[]string{"neighborhood"},
	)
)

// RecordSearch records a completed search.
func RecordSearch(source string, d time.Duration) {
	SearchOutcomes.WithLabelValues(source).Inc()
	SearchDuration.WithLabelValues(source).Observe(d.Seconds())
}
