// Package pipeline sequences a prep request end to end: cache lookup,
// research, cache write, synthesis, and persistence.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prep-service/internal/cache"
	"github.com/sells-group/prep-service/internal/model"
	"github.com/sells-group/prep-service/internal/store"
)

// ErrInvalidRequest marks a request rejected before any work started.
var ErrInvalidRequest = eris.New("pipeline: invalid request")

// ErrResearchFailed marks a run where the research phase produced no
// usable package. Nothing is cached or persisted for these.
var ErrResearchFailed = eris.New("pipeline: research failed")

// ErrNoUserProfile marks a run for a user without a seller profile.
// Synthesis cannot work without the seller's own context.
var ErrNoUserProfile = eris.New("pipeline: user profile not found")

// Researcher produces the research envelope for a request. Implemented
// by research.Orchestrator.
type Researcher interface {
	Research(ctx context.Context, req model.PrepRequest) *model.ResearchResult
}

// Synthesizer turns research plus seller context into a report.
// Implemented by synthesis.Synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, req model.PrepRequest, research *model.ResearchPackage, profile *model.UserProfile) *model.PrepReport
}

// Metrics receives pipeline-level events. Implemented by the monitoring
// collector; a nil metrics sink disables recording.
type Metrics interface {
	RecordPrep(failed, cacheHit bool)
	RecordResearchFailure()
	RecordDegradedSynthesis()
}

// PrepPipeline owns the full prep flow. Research is the only phase that
// can fail the request; synthesis degrades instead of failing, and a
// lost cache write costs a future re-research, not this request.
type PrepPipeline struct {
	store       store.Store
	cache       *cache.CompanyCache
	researcher  Researcher
	synthesizer Synthesizer
	metrics     Metrics
}

// New wires the pipeline.
func New(s store.Store, c *cache.CompanyCache, r Researcher, syn Synthesizer) *PrepPipeline {
	return &PrepPipeline{
		store:       s,
		cache:       c,
		researcher:  r,
		synthesizer: syn,
	}
}

// SetMetrics attaches a metrics sink.
func (p *PrepPipeline) SetMetrics(m Metrics) {
	p.metrics = m
}

// Run executes one prep request for the given user and returns the
// persisted prep.
func (p *PrepPipeline) Run(ctx context.Context, userID string, req model.PrepRequest) (*model.MeetingPrep, error) {
	prep, err := p.run(ctx, userID, req)
	if p.metrics != nil {
		p.metrics.RecordPrep(err != nil, prep != nil && prep.CacheHit)
	}
	return prep, err
}

func (p *PrepPipeline) run(ctx context.Context, userID string, req model.PrepRequest) (*model.MeetingPrep, error) {
	if req.CompanyName == "" {
		return nil, eris.Wrap(ErrInvalidRequest, "company_name is required")
	}
	if req.MeetingObjective == "" {
		return nil, eris.Wrap(ErrInvalidRequest, "meeting_objective is required")
	}

	identity := model.NormalizeCompanyName(req.CompanyName)
	log := zap.L().With(
		zap.String("user_id", userID),
		zap.String("company", req.CompanyName),
		zap.String("identity", identity),
	)

	// Phase 1: cached research, if fresh. A cache read failure is
	// treated as a miss; re-researching beats failing the request.
	var (
		pkg      *model.ResearchPackage
		sources  []string
		cacheHit bool
	)
	lookup, err := p.cache.Get(ctx, req.CompanyName)
	if err != nil {
		log.Warn("cache lookup failed, treating as miss", zap.Error(err))
	}
	if lookup != nil && lookup.Fresh() {
		pkg = lookup.Entry.Payload
		sources = lookup.Entry.SourceURLs
		cacheHit = true
		log.Info("using fresh cached research",
			zap.Float64("confidence", lookup.Entry.Confidence),
		)
	}

	// Phase 2: research. The only phase whose failure fails the run.
	if pkg == nil {
		result := p.researcher.Research(ctx, req)
		if !result.Success {
			if p.metrics != nil {
				p.metrics.RecordResearchFailure()
			}
			return nil, eris.Wrapf(ErrResearchFailed, "%s: %s", req.CompanyName, result.Error)
		}
		pkg = result.ResearchData
		sources = result.SourcesUsed

		// Share the work: future requests for this company, from any
		// user, start from this package. Failure here is non-fatal.
		if p.cache.Put(ctx, req.CompanyName, pkg, result.ConfidenceScore, result.SourcesUsed) {
			log.Info("research cached", zap.Float64("confidence", result.ConfidenceScore))
		}
	}

	// Phase 3: synthesis needs the seller's own context.
	profile, err := p.store.GetUserProfile(ctx, userID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrNoUserProfile, "user %s", userID)
		}
		return nil, eris.Wrap(err, "pipeline: load user profile")
	}

	report := p.synthesizer.Synthesize(ctx, req, pkg, profile)
	if report.OverallConfidence == 0 && p.metrics != nil {
		p.metrics.RecordDegradedSynthesis()
	}
	if len(report.Sources) == 0 {
		report.Sources = sources
	}

	prep, err := p.store.CreateMeetingPrep(ctx, model.MeetingPrep{
		UserID:             userID,
		CompanyName:        req.CompanyName,
		CompanyIdentity:    identity,
		MeetingObjective:   req.MeetingObjective,
		MeetingDate:        req.MeetingDate,
		ContactPersonName:  req.ContactPersonName,
		ContactLinkedInURL: req.ContactLinkedInURL,
		PrepData:           report,
		OverallConfidence:  report.OverallConfidence,
		CacheHit:           cacheHit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: persist prep")
	}

	log.Info("prep complete",
		zap.String("prep_id", prep.ID),
		zap.Bool("cache_hit", cacheHit),
		zap.Float64("overall_confidence", prep.OverallConfidence),
	)
	return prep, nil
}
