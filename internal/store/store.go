package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prep-service/internal/model"
)

// ErrNotFound is returned when a requested record does not exist. Cache
// lookups are the exception: a miss is (nil, nil), not an error.
var ErrNotFound = eris.New("store: not found")

// CacheStats summarizes the shared company cache.
type CacheStats struct {
	TotalEntries  int     `json:"total_entries"`
	FreshEntries  int     `json:"fresh_entries"`
	StaleEntries  int     `json:"stale_entries"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Store defines the persistence interface for the prep service.
type Store interface {
	// Company cache. Entries are shared across users and keyed by
	// normalized identity.
	GetCompanyCache(ctx context.Context, identity string) (*model.CompanyCacheEntry, error)
	PutCompanyCache(ctx context.Context, entry *model.CompanyCacheEntry) error
	DeleteCompanyCache(ctx context.Context, identity string) (bool, error)
	CompanyCacheStats(ctx context.Context, freshCutoff time.Time) (*CacheStats, error)
	ImportCompanyCache(ctx context.Context, entries []model.CompanyCacheEntry) (int64, error)

	// Meeting preps. Owned by a single user; reads are scoped to the owner.
	CreateMeetingPrep(ctx context.Context, prep model.MeetingPrep) (*model.MeetingPrep, error)
	GetMeetingPrep(ctx context.Context, prepID, userID string) (*model.MeetingPrep, error)
	ListMeetingPreps(ctx context.Context, userID string, limit, offset int) ([]model.MeetingPrep, error)

	// Meeting outcomes. At most one per prep; writes replace.
	UpsertMeetingOutcome(ctx context.Context, outcome model.MeetingOutcome) (*model.MeetingOutcome, error)
	GetMeetingOutcome(ctx context.Context, prepID string) (*model.MeetingOutcome, error)

	// User profiles
	GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	PutUserProfile(ctx context.Context, userID string, profile model.UserProfile) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
