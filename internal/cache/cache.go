// Package cache implements the shared company research cache. Entries
// are keyed by normalized company identity and age out of freshness
// after a configurable window rather than being evicted.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prep-service/internal/model"
	"github.com/sells-group/prep-service/internal/store"
)

// DefaultTTL is the freshness window for cached research.
const DefaultTTL = 7 * 24 * time.Hour

// CompanyCache fronts the store's company_cache table with freshness
// classification and write clamping.
type CompanyCache struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a CompanyCache.
type Option func(*CompanyCache)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *CompanyCache) {
		c.now = now
	}
}

// New creates a CompanyCache over the given store. A non-positive ttl
// falls back to DefaultTTL.
func New(s store.Store, ttl time.Duration, opts ...Option) *CompanyCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &CompanyCache{
		store: s,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup is a cache hit with its freshness classification.
type Lookup struct {
	Entry  *model.CompanyCacheEntry
	Status model.CacheStatus
}

// Fresh reports whether the entry can be served without re-research.
func (l *Lookup) Fresh() bool {
	return l.Status == model.CacheFresh
}

// Get looks up cached research for a company. The name is normalized
// here, so callers can pass the raw display name. A miss returns
// (nil, nil). Freshness is computed at read time: an entry exactly at
// the window boundary counts as stale.
func (c *CompanyCache) Get(ctx context.Context, companyName string) (*Lookup, error) {
	identity := model.NormalizeCompanyName(companyName)

	entry, err := c.store.GetCompanyCache(ctx, identity)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get %s", identity)
	}
	if entry == nil {
		return nil, nil
	}

	status := model.CacheStale
	if entry.Age(c.now()) < c.ttl {
		status = model.CacheFresh
	}

	zap.L().Debug("cache hit",
		zap.String("identity", identity),
		zap.String("status", string(status)),
		zap.Float64("confidence", entry.Confidence),
	)
	return &Lookup{Entry: entry, Status: status}, nil
}

// Put writes research for a company, replacing any existing entry.
// Confidence is clamped to [0, 1] before the write. A failed write is
// logged and reported as false but never propagated: losing a cache
// write must not fail the research that produced it.
func (c *CompanyCache) Put(ctx context.Context, companyName string, payload *model.ResearchPackage, confidence float64, sourceURLs []string) bool {
	entry := &model.CompanyCacheEntry{
		Identity:    model.NormalizeCompanyName(companyName),
		Payload:     payload,
		Confidence:  model.ClampConfidence(confidence),
		SourceURLs:  sourceURLs,
		LastUpdated: c.now().UTC(),
	}

	if err := c.store.PutCompanyCache(ctx, entry); err != nil {
		zap.L().Warn("cache write failed",
			zap.String("identity", entry.Identity),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Delete removes a company's cached research. Returns whether an entry
// existed.
func (c *CompanyCache) Delete(ctx context.Context, companyName string) (bool, error) {
	identity := model.NormalizeCompanyName(companyName)
	deleted, err := c.store.DeleteCompanyCache(ctx, identity)
	return deleted, eris.Wrapf(err, "cache: delete %s", identity)
}

// Stats summarizes the cache using the configured freshness window.
func (c *CompanyCache) Stats(ctx context.Context) (*store.CacheStats, error) {
	cutoff := c.now().Add(-c.ttl)
	stats, err := c.store.CompanyCacheStats(ctx, cutoff)
	return stats, eris.Wrap(err, "cache: stats")
}

// Import bulk-loads entries, normalizing identities and clamping
// confidences. Entries without a timestamp get the current time.
func (c *CompanyCache) Import(ctx context.Context, entries []model.CompanyCacheEntry) (int64, error) {
	now := c.now().UTC()
	for i := range entries {
		entries[i].Identity = model.NormalizeCompanyName(entries[i].Identity)
		entries[i].Confidence = model.ClampConfidence(entries[i].Confidence)
		if entries[i].LastUpdated.IsZero() {
			entries[i].LastUpdated = now
		}
	}
	n, err := c.store.ImportCompanyCache(ctx, entries)
	return n, eris.Wrap(err, "cache: import")
}
