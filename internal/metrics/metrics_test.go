package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSearch(t *testing.T) {
	before := testutil.ToFloat64(SearchOutcomes.WithLabelValues("stale"))
	RecordSearch("stale", 15*time.Millisecond)
	RecordSearch("stale", 20*time.Millisecond)
	assert.InDelta(t, before+2, testutil.ToFloat64(SearchOutcomes.WithLabelValues("stale")), 1e-9)
}

func TestCounterLabels(t *testing.T) {
	ProviderFailures.WithLabelValues("quota_exceeded").Inc()
	LiveRecordsDropped.WithLabelValues("region").Inc()
	StreamEvents.WithLabelValues("metadata").Inc()
	ChatExchanges.WithLabelValues("completed").Inc()
	ExtractionDiscards.WithLabelValues("no_coordinates").Inc()
	DiscoveryPlaces.WithLabelValues("Chamberí").Add(3)
	CircuitState.WithLabelValues("google").Set(1)

	assert.GreaterOrEqual(t, testutil.ToFloat64(ProviderFailures.WithLabelValues("quota_exceeded")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(DiscoveryPlaces.WithLabelValues("Chamberí")), 3.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitState.WithLabelValues("google")))
}
