// Package research runs the company research agent: a tool-equipped
// model invocation that gathers public intelligence about a prospect
// company and returns it as a validated structured package.
package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prep-service/internal/coerce"
	"github.com/sells-group/prep-service/internal/model"
	"github.com/sells-group/prep-service/internal/resilience"
	"github.com/sells-group/prep-service/pkg/anthropic"
	"github.com/sells-group/prep-service/pkg/apify"
	"github.com/sells-group/prep-service/pkg/firecrawl"
	"github.com/sells-group/prep-service/pkg/serpapi"
)

// Config holds the tunables for a research run.
type Config struct {
	Model         string
	MaxTokens     int64
	MaxToolCalls  int
	SearchResults int
	Retry         resilience.RetryConfig
}

// Orchestrator drives the research agent. It never returns a Go error:
// every failure mode collapses into a ResearchResult with Success false,
// which the pipeline turns into a request-level failure.
type Orchestrator struct {
	llm     anthropic.Client
	search  serpapi.Client
	scraper firecrawl.Client
	network apify.Client
	cfg     Config
}

// NewOrchestrator wires the research agent to its provider clients.
func NewOrchestrator(llm anthropic.Client, search serpapi.Client, scraper firecrawl.Client, network apify.Client, cfg Config) *Orchestrator {
	return &Orchestrator{
		llm:     llm,
		search:  search,
		scraper: scraper,
		network: network,
		cfg:     cfg,
	}
}

const researchSystemPrompt = `You are a B2B sales research analyst. Your job is to build an accurate,
current intelligence package about a prospect company before a sales call.

Work methodically:
1. Search the web for the company to confirm identity, industry, and size.
2. Scrape the company website for positioning, products, and strategy.
3. Pull the company's LinkedIn profile for firmographics.
4. Find decision makers: if a contact is named, fetch their LinkedIn
   profile; otherwise identify likely decision makers from your research.
5. Check recent news and the company's LinkedIn posts for initiatives,
   funding, launches, and leadership changes.

Rules:
- Only report facts you found in tool results. Never invent news,
  initiatives, or people.
- If a tool fails or returns nothing, note what you could not verify in
  research_limitations and move on.
- Set overall_confidence between 0.0 and 1.0 based on how much you
  verified: 0.8+ means company identity, industry, and at least one
  decision maker confirmed from primary sources.

When you are done, respond with ONLY a JSON object, no prose and no code
fence, in exactly this shape:

{
  "company_intelligence": {
    "name": "...",
    "industry": "...",
    "size": "...",
    "description": "...",
    "recent_news": ["..."],
    "strategic_initiatives": ["..."]
  },
  "decision_makers": [
    {"name": "...", "title": "...", "linkedin_url": "...", "background": "...", "recent_activity": "..."}
  ],
  "research_limitations": ["..."],
  "overall_confidence": 0.0,
  "sources_used": ["..."]
}`

// Research runs the agent for one company and returns the envelope. The
// whole agent run is retried as a unit on transient failures; tool
// failure notes and visited URLs are reset per attempt so a retry does
// not inherit a dead attempt's bookkeeping.
func (o *Orchestrator) Research(ctx context.Context, req model.PrepRequest) *model.ResearchResult {
	tools := newToolset(o.search, o.scraper, o.network, o.cfg.SearchResults)

	run, err := resilience.Do(ctx, o.cfg.Retry, func(ctx context.Context) (*anthropic.ToolLoopResult, error) {
		tools.failures = tools.failures[:0]
		tools.visited = tools.visited[:0]
		return o.llm.RunWithTools(ctx, anthropic.ToolLoopRequest{
			Model:        o.cfg.Model,
			MaxTokens:    o.cfg.MaxTokens,
			System:       anthropic.BuildCachedSystemBlocks(researchSystemPrompt),
			Prompt:       buildResearchPrompt(req),
			Tools:        tools.bindings(),
			MaxToolCalls: o.cfg.MaxToolCalls,
		})
	})
	if err != nil {
		zap.L().Error("research run failed",
			zap.String("company", req.CompanyName),
			zap.Error(err),
		)
		return researchFailure(req.CompanyName, err)
	}
	run.Usage.LogCost(o.cfg.Model, "research")

	var pkg model.ResearchPackage
	if err := coerce.Into(run.Text, "research_data", &pkg); err != nil {
		zap.L().Error("research output unusable",
			zap.String("company", req.CompanyName),
			zap.Error(err),
		)
		return researchFailure(req.CompanyName, err)
	}

	pkg.OverallConfidence = model.ClampConfidence(pkg.OverallConfidence)
	pkg.ResearchLimitations = append(pkg.ResearchLimitations, tools.failures...)
	pkg.SourcesUsed = mergeSources(pkg.SourcesUsed, tools.visited)

	zap.L().Info("research complete",
		zap.String("company", req.CompanyName),
		zap.Int("tool_calls", run.ToolCalls),
		zap.Int("decision_makers", len(pkg.DecisionMakers)),
		zap.Float64("confidence", pkg.OverallConfidence),
	)
	return &model.ResearchResult{
		Success:         true,
		CompanyName:     req.CompanyName,
		ResearchData:    &pkg,
		SourcesUsed:     pkg.SourcesUsed,
		ConfidenceScore: pkg.OverallConfidence,
	}
}

func buildResearchPrompt(req model.PrepRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research the company %q ahead of a sales meeting.\n", req.CompanyName)
	fmt.Fprintf(&b, "Meeting objective: %s\n", req.MeetingObjective)
	if req.ContactPersonName != "" {
		fmt.Fprintf(&b, "Named contact: %s\n", req.ContactPersonName)
	}
	if req.ContactLinkedInURL != "" {
		fmt.Fprintf(&b, "Contact LinkedIn URL: %s\n", req.ContactLinkedInURL)
	}
	if req.MeetingDate != "" {
		fmt.Fprintf(&b, "Meeting date: %s\n", req.MeetingDate)
	}
	return b.String()
}

func researchFailure(companyName string, err error) *model.ResearchResult {
	return &model.ResearchResult{
		Success:     false,
		CompanyName: companyName,
		Error:       err.Error(),
	}
}

// mergeSources unions the model's reported sources with the URLs the
// tools actually visited, preserving order and dropping duplicates.
func mergeSources(reported, visited []string) []string {
	seen := make(map[string]bool, len(reported)+len(visited))
	merged := make([]string, 0, len(reported)+len(visited))
	for _, s := range append(reported, visited...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		merged = append(merged, s)
	}
	return merged
}
