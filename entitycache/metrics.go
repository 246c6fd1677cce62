package entitycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricHits tracks cache hits by operation (fetch, fetch_multi,
	// fetch_by_index, fetch_attribute, exists).
	metricHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_cache_hits_total",
			Help: "Total number of entity cache hits",
		},
		[]string{"op"},
	)

	// metricMisses tracks cache misses that fell back to the record store.
	metricMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_cache_misses_total",
			Help: "Total number of entity cache misses",
		},
		[]string{"op"},
	)

	// metricIntegrityWarnings counts loaded records whose id did not match
	// the id used to request them (stale index pointing at the wrong row).
	metricIntegrityWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entity_cache_integrity_warnings_total",
			Help: "Total number of id mismatches between requested and loaded records",
		},
	)

	// metricInvalidationErrors counts per-key delete failures during
	// invalidation, labeled by the index family that failed.
	metricInvalidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_cache_invalidation_errors_total",
			Help: "Total number of failed cache deletions during invalidation",
		},
		[]string{"index"},
	)

	// metricDecodeFallbacks counts decodes that succeeded only after the
	// registry resolved a missing type.
	metricDecodeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entity_cache_decode_fallbacks_total",
			Help: "Total number of envelope decodes that needed the type resolver",
		},
	)
)
