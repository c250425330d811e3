package core

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics tracks Store activity
type CacheMetrics struct {
	Hits          atomic.Int64
	Misses        atomic.Int64
	Fetches       atomic.Int64 // fetch runs started (one per deduplicated request)
	Errors        atomic.Int64
	Discarded     atomic.Int64 // responses dropped: superseded, cancelled or evicted
	Invalidations atomic.Int64
	Evictions     atomic.Int64

	otelHits      metric.Int64Counter
	otelMisses    metric.Int64Counter
	otelFetches   metric.Int64Counter
	otelErrors    metric.Int64Counter
	otelDiscarded metric.Int64Counter
	otelEvictions metric.Int64Counter
}

func newCacheMetrics() *CacheMetrics {
	m := &CacheMetrics{}
	meter := otel.Meter("quemvota/core/cache")

	m.otelHits, _ = meter.Int64Counter("quemvota.cache.hits",
		metric.WithDescription("Reads served from fresh cache entries"))
	m.otelMisses, _ = meter.Int64Counter("quemvota.cache.misses",
		metric.WithDescription("Reads of stale or absent entries"))
	m.otelFetches, _ = meter.Int64Counter("quemvota.cache.fetches",
		metric.WithDescription("Fetch runs started"))
	m.otelErrors, _ = meter.Int64Counter("quemvota.cache.errors",
		metric.WithDescription("Fetch runs that ended in error"))
	m.otelDiscarded, _ = meter.Int64Counter("quemvota.cache.discarded",
		metric.WithDescription("Responses discarded on arrival"))
	m.otelEvictions, _ = meter.Int64Counter("quemvota.cache.evictions",
		metric.WithDescription("Entries garbage collected"))
	return m
}

func (m *CacheMetrics) recordHit(ctx context.Context) {
	m.Hits.Add(1)
	if m.otelHits != nil {
		m.otelHits.Add(ctx, 1)
	}
}

func (m *CacheMetrics) recordMiss(ctx context.Context) {
	m.Misses.Add(1)
	if m.otelMisses != nil {
		m.otelMisses.Add(ctx, 1)
	}
}

func (m *CacheMetrics) recordFetch(ctx context.Context) {
	m.Fetches.Add(1)
	if m.otelFetches != nil {
		m.otelFetches.Add(ctx, 1)
	}
}

func (m *CacheMetrics) recordError(ctx context.Context) {
	m.Errors.Add(1)
	if m.otelErrors != nil {
		m.otelErrors.Add(ctx, 1)
	}
}

func (m *CacheMetrics) recordDiscard(ctx context.Context) {
	m.Discarded.Add(1)
	if m.otelDiscarded != nil {
		m.otelDiscarded.Add(ctx, 1)
	}
}

func (m *CacheMetrics) recordEviction(ctx context.Context) {
	m.Evictions.Add(1)
	if m.otelEvictions != nil {
		m.otelEvictions.Add(ctx, 1)
	}
}

// Snapshot returns a point-in-time snapshot of metrics
func (m *CacheMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":          m.Hits.Load(),
		"misses":        m.Misses.Load(),
		"fetches":       m.Fetches.Load(),
		"errors":        m.Errors.Load(),
		"discarded":     m.Discarded.Load(),
		"invalidations": m.Invalidations.Load(),
		"evictions":     m.Evictions.Load(),
	}
}

// HitRate returns the cache hit rate (0.0 to 1.0)
func (m *CacheMetrics) HitRate() float64 {
	hits := m.Hits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
