package model

import "time"

// CacheStatus reports how old a cache entry is relative to the freshness
// window.
type CacheStatus string

const (
	// CacheFresh means the entry is younger than the freshness window and
	// can be served without re-research.
	CacheFresh CacheStatus = "fresh"

	// CacheStale means the entry has aged past the window. Stale entries
	// are still returned; callers decide whether to re-research.
	CacheStale CacheStatus = "stale"
)

// CompanyCacheEntry is one shared research record, keyed by normalized
// company identity. Entries are global: any user's research run can
// populate them and any user's prep can read them.
type CompanyCacheEntry struct {
	Identity    string           `json:"company_name_normalized"`
	Payload     *ResearchPackage `json:"research_payload"`
	Confidence  float64          `json:"confidence_score"`
	SourceURLs  []string         `json:"source_urls"`
	LastUpdated time.Time        `json:"last_updated"`
}

// Age returns how long ago the entry was last written.
func (e *CompanyCacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastUpdated)
}
