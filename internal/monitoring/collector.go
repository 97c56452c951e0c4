// Package monitoring tracks service-level counters for the prep
// pipeline and assembles point-in-time snapshots for the stats
// endpoint.
package monitoring

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prep-service/internal/cache"
	"github.com/sells-group/prep-service/internal/store"
)

// MetricsSnapshot holds a point-in-time view of service health.
type MetricsSnapshot struct {
	// Request counters since process start.
	PrepsTotal        int64   `json:"preps_total"`
	PrepsFailed       int64   `json:"preps_failed"`
	PrepFailRate      float64 `json:"prep_fail_rate"`
	CacheHits         int64   `json:"cache_hits"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	ResearchFailures  int64   `json:"research_failures"`
	DegradedSyntheses int64   `json:"degraded_syntheses"`

	// Cache state.
	Cache *store.CacheStats `json:"cache"`

	// Metadata.
	UptimeSeconds float64   `json:"uptime_seconds"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector accumulates pipeline counters and reads cache state on
// demand. All counter methods are safe for concurrent use.
type Collector struct {
	cache   *cache.CompanyCache
	started time.Time

	prepsTotal        atomic.Int64
	prepsFailed       atomic.Int64
	cacheHits         atomic.Int64
	researchFailures  atomic.Int64
	degradedSyntheses atomic.Int64
}

// NewCollector creates a Collector over the given cache.
func NewCollector(c *cache.CompanyCache) *Collector {
	return &Collector{
		cache:   c,
		started: time.Now(),
	}
}

// RecordPrep counts one finished prep request.
func (c *Collector) RecordPrep(failed, cacheHit bool) {
	c.prepsTotal.Add(1)
	if failed {
		c.prepsFailed.Add(1)
	}
	if cacheHit {
		c.cacheHits.Add(1)
	}
}

// RecordResearchFailure counts a research run that produced no package.
func (c *Collector) RecordResearchFailure() {
	c.researchFailures.Add(1)
}

// RecordDegradedSynthesis counts a synthesis that fell back to an error
// report.
func (c *Collector) RecordDegradedSynthesis() {
	c.degradedSyntheses.Add(1)
}

// Collect assembles the current snapshot.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	cacheStats, err := c.cache.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect cache stats")
	}

	snap := &MetricsSnapshot{
		PrepsTotal:        c.prepsTotal.Load(),
		PrepsFailed:       c.prepsFailed.Load(),
		CacheHits:         c.cacheHits.Load(),
		ResearchFailures:  c.researchFailures.Load(),
		DegradedSyntheses: c.degradedSyntheses.Load(),
		Cache:             cacheStats,
		UptimeSeconds:     time.Since(c.started).Seconds(),
		CollectedAt:       time.Now().UTC(),
	}
	if snap.PrepsTotal > 0 {
		snap.PrepFailRate = float64(snap.PrepsFailed) / float64(snap.PrepsTotal)
		snap.CacheHitRate = float64(snap.CacheHits) / float64(snap.PrepsTotal)
	}
	return snap, nil
}
