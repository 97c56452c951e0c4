package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prep-service/internal/cache"
	"github.com/sells-group/prep-service/internal/model"
	"github.com/sells-group/prep-service/internal/store"
)

// fakeStore implements store.Store over maps with injectable errors.
type fakeStore struct {
	cacheEntries map[string]*model.CompanyCacheEntry
	profiles     map[string]*model.UserProfile
	preps        []model.MeetingPrep

	cacheGetErr error
	cachePutErr error
	createErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cacheEntries: map[string]*model.CompanyCacheEntry{},
		profiles:     map[string]*model.UserProfile{},
	}
}

func (f *fakeStore) GetCompanyCache(ctx context.Context, identity string) (*model.CompanyCacheEntry, error) {
	if f.cacheGetErr != nil {
		return nil, f.cacheGetErr
	}
	return f.cacheEntries[identity], nil
}

func (f *fakeStore) PutCompanyCache(ctx context.Context, entry *model.CompanyCacheEntry) error {
	if f.cachePutErr != nil {
		return f.cachePutErr
	}
	f.cacheEntries[entry.Identity] = entry
	return nil
}

func (f *fakeStore) DeleteCompanyCache(ctx context.Context, identity string) (bool, error) {
	_, ok := f.cacheEntries[identity]
	delete(f.cacheEntries, identity)
	return ok, nil
}

func (f *fakeStore) CompanyCacheStats(ctx context.Context, freshCutoff time.Time) (*store.CacheStats, error) {
	return &store.CacheStats{TotalEntries: len(f.cacheEntries)}, nil
}

func (f *fakeStore) ImportCompanyCache(ctx context.Context, entries []model.CompanyCacheEntry) (int64, error) {
	return 0, nil
}

func (f *fakeStore) CreateMeetingPrep(ctx context.Context, prep model.MeetingPrep) (*model.MeetingPrep, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	prep.ID = "prep-1"
	prep.CreatedAt = time.Now().UTC()
	f.preps = append(f.preps, prep)
	return &prep, nil
}

func (f *fakeStore) GetMeetingPrep(ctx context.Context, prepID, userID string) (*model.MeetingPrep, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListMeetingPreps(ctx context.Context, userID string, limit, offset int) ([]model.MeetingPrep, error) {
	return f.preps, nil
}

func (f *fakeStore) UpsertMeetingOutcome(ctx context.Context, outcome model.MeetingOutcome) (*model.MeetingOutcome, error) {
	return &outcome, nil
}

func (f *fakeStore) GetMeetingOutcome(ctx context.Context, prepID string) (*model.MeetingOutcome, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) PutUserProfile(ctx context.Context, userID string, profile model.UserProfile) error {
	f.profiles[userID] = &profile
	return nil
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                      { return nil }

type fakeResearcher struct {
	result *model.ResearchResult
	calls  int
}

func (f *fakeResearcher) Research(ctx context.Context, req model.PrepRequest) *model.ResearchResult {
	f.calls++
	return f.result
}

type fakeSynthesizer struct {
	report *model.PrepReport
	calls  int

	gotResearch *model.ResearchPackage
	gotProfile  *model.UserProfile
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, req model.PrepRequest, research *model.ResearchPackage, profile *model.UserProfile) *model.PrepReport {
	f.calls++
	f.gotResearch = research
	f.gotProfile = profile
	return f.report
}

type fakeMetrics struct {
	preps             int
	failed            int
	cacheHits         int
	researchFailures  int
	degradedSyntheses int
}

func (f *fakeMetrics) RecordPrep(failed, cacheHit bool) {
	f.preps++
	if failed {
		f.failed++
	}
	if cacheHit {
		f.cacheHits++
	}
}

func (f *fakeMetrics) RecordResearchFailure()   { f.researchFailures++ }
func (f *fakeMetrics) RecordDegradedSynthesis() { f.degradedSyntheses++ }

func researchPackage(name string) *model.ResearchPackage {
	pkg := &model.ResearchPackage{OverallConfidence: 0.8}
	pkg.CompanyIntelligence.Name = name
	return pkg
}

func goodReport() *model.PrepReport {
	return &model.PrepReport{
		ExecutiveSummary: model.ExecutiveSummary{
			TheClient: "Acme builds widgets", OurAngle: "speed", CallGoal: "demo", Confidence: 0.8,
		},
		StrategicNarrative:  model.StrategicNarrative{DreamOutcome: "growth"},
		TalkingPoints:       model.TalkingPoints{OpeningHook: "hi"},
		CompanyIntelligence: model.CompanyIntelligence{Industry: "mfg", CompanySize: "200"},
		OverallConfidence:   0.75,
		Sources:             []string{"https://acme.example"},
	}
}

type fixture struct {
	store       *fakeStore
	researcher  *fakeResearcher
	synthesizer *fakeSynthesizer
	metrics     *fakeMetrics
	pipeline    *PrepPipeline
}

func newFixture() *fixture {
	fs := newFakeStore()
	fs.profiles["user-1"] = &model.UserProfile{CompanyName: "Sells Group"}
	r := &fakeResearcher{result: &model.ResearchResult{
		Success:         true,
		CompanyName:     "Acme Inc",
		ResearchData:    researchPackage("Acme Inc"),
		SourcesUsed:     []string{"https://acme.example"},
		ConfidenceScore: 0.8,
	}}
	syn := &fakeSynthesizer{report: goodReport()}
	m := &fakeMetrics{}

	p := New(fs, cache.New(fs, 0), r, syn)
	p.SetMetrics(m)
	return &fixture{store: fs, researcher: r, synthesizer: syn, metrics: m, pipeline: p}
}

func testRequest() model.PrepRequest {
	return model.PrepRequest{CompanyName: "Acme Inc", MeetingObjective: "book a demo"}
}

func TestRun_MissResearchesAndCaches(t *testing.T) {
	f := newFixture()

	prep, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, f.researcher.calls)
	assert.Equal(t, 1, f.synthesizer.calls)
	assert.False(t, prep.CacheHit)
	assert.Equal(t, "acme-inc", prep.CompanyIdentity)
	assert.Equal(t, 0.75, prep.OverallConfidence)

	// Research landed in the shared cache.
	cached := f.store.cacheEntries["acme-inc"]
	require.NotNil(t, cached)
	assert.Equal(t, 0.8, cached.Confidence)

	// And the prep was persisted.
	require.Len(t, f.store.preps, 1)
	assert.Equal(t, "user-1", f.store.preps[0].UserID)

	assert.Equal(t, 1, f.metrics.preps)
	assert.Equal(t, 0, f.metrics.failed)
	assert.Equal(t, 0, f.metrics.cacheHits)
}

func TestRun_FreshCacheHitSkipsResearch(t *testing.T) {
	f := newFixture()
	f.store.cacheEntries["acme-inc"] = &model.CompanyCacheEntry{
		Identity:    "acme-inc",
		Payload:     researchPackage("Acme Inc"),
		Confidence:  0.9,
		SourceURLs:  []string{"https://cached.example"},
		LastUpdated: time.Now().UTC().Add(-time.Hour),
	}

	prep, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.NoError(t, err)

	assert.Equal(t, 0, f.researcher.calls)
	assert.True(t, prep.CacheHit)
	assert.Same(t, f.store.cacheEntries["acme-inc"].Payload, f.synthesizer.gotResearch)
	assert.Equal(t, 1, f.metrics.cacheHits)
}

func TestRun_StaleCacheEntryReResearches(t *testing.T) {
	f := newFixture()
	f.store.cacheEntries["acme-inc"] = &model.CompanyCacheEntry{
		Identity:    "acme-inc",
		Payload:     researchPackage("Acme Inc"),
		LastUpdated: time.Now().UTC().Add(-8 * 24 * time.Hour),
	}

	prep, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, f.researcher.calls)
	assert.False(t, prep.CacheHit)
}

func TestRun_CacheReadFailureIsTreatedAsMiss(t *testing.T) {
	f := newFixture()
	f.store.cacheGetErr = eris.New("connection refused")

	prep, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, f.researcher.calls)
	assert.False(t, prep.CacheHit)
}

func TestRun_CacheWriteFailureIsNonFatal(t *testing.T) {
	f := newFixture()
	f.store.cachePutErr = eris.New("disk full")

	_, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.NoError(t, err)
	require.Len(t, f.store.preps, 1)
}

func TestRun_ResearchFailureFailsRun(t *testing.T) {
	f := newFixture()
	f.researcher.result = &model.ResearchResult{
		Success:     false,
		CompanyName: "Acme Inc",
		Error:       "agent exhausted retries",
	}

	_, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrResearchFailed))
	assert.Contains(t, err.Error(), "agent exhausted retries")

	// Nothing cached, nothing persisted, synthesis never ran.
	assert.Empty(t, f.store.cacheEntries)
	assert.Empty(t, f.store.preps)
	assert.Equal(t, 0, f.synthesizer.calls)
	assert.Equal(t, 1, f.metrics.researchFailures)
	assert.Equal(t, 1, f.metrics.failed)
}

func TestRun_MissingProfileFailsRun(t *testing.T) {
	f := newFixture()
	delete(f.store.profiles, "user-1")

	_, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoUserProfile))
	assert.Empty(t, f.store.preps)

	// Research still happened and was cached before the profile check.
	assert.Equal(t, 1, f.researcher.calls)
	assert.NotEmpty(t, f.store.cacheEntries)
}

func TestRun_DegradedSynthesisStillPersists(t *testing.T) {
	f := newFixture()
	f.synthesizer.report = model.NewErrorReport("book a demo", "model unavailable")

	prep, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.NoError(t, err)
	assert.Equal(t, 0.0, prep.OverallConfidence)
	require.Len(t, f.store.preps, 1)
	assert.Equal(t, 1, f.metrics.degradedSyntheses)

	// The error report carries no sources; research sources fill in.
	assert.Equal(t, []string{"https://acme.example"}, prep.PrepData.Sources)
}

func TestRun_InvalidRequestRejected(t *testing.T) {
	f := newFixture()

	_, err := f.pipeline.Run(context.Background(), "user-1", model.PrepRequest{MeetingObjective: "demo"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidRequest))

	_, err = f.pipeline.Run(context.Background(), "user-1", model.PrepRequest{CompanyName: "Acme"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidRequest))

	assert.Equal(t, 0, f.researcher.calls)
	assert.Equal(t, 2, f.metrics.failed)
}

func TestRun_PersistFailurePropagates(t *testing.T) {
	f := newFixture()
	f.store.createErr = eris.New("constraint violation")

	_, err := f.pipeline.Run(context.Background(), "user-1", testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist prep")
}
