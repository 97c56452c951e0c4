// Package synthesis turns a research package plus the seller's own
// context into the six-section prep report.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prep-service/internal/coerce"
	"github.com/sells-group/prep-service/internal/model"
	"github.com/sells-group/prep-service/internal/resilience"
	"github.com/sells-group/prep-service/pkg/anthropic"
)

// Config holds the tunables for a synthesis run.
type Config struct {
	Model        string
	MaxTokens    int64
	MaxToolCalls int
	Retry        resilience.RetryConfig
}

// Synthesizer produces prep reports. It never fails outright: any error
// along the way, model, transport, or coercion, degrades into a
// structurally valid zero-confidence report describing what went wrong,
// so the pipeline always has something to persist.
type Synthesizer struct {
	llm anthropic.Client
	cfg Config
}

// NewSynthesizer wires the synthesis agent to the model client.
func NewSynthesizer(llm anthropic.Client, cfg Config) *Synthesizer {
	return &Synthesizer{llm: llm, cfg: cfg}
}

const synthesisSystemPrompt = `You are a senior sales strategist preparing a colleague for a sales call.
You are given verified research about the prospect company and the
seller's own company profile. Your job is to turn them into a sharp,
actionable briefing.

Use the search_portfolio tool to find the seller's past projects most
relevant to this prospect, and cite them in proof_of_achievement with
their relevance scores.

Rules:
- Ground every claim in the research provided. Do not invent facts.
- Rate pain point urgency and impact as integers from 1 to 5.
- Set each section's confidence between 0.0 and 1.0 based on how well
  the research supports it.
- Carry any research limitations through to research_limitations.

Respond with ONLY a JSON object, no prose and no code fence, in exactly
this shape:

{
  "executive_summary": {"the_client": "...", "our_angle": "...", "call_goal": "...", "confidence": 0.0},
  "strategic_narrative": {
    "dream_outcome": "...",
    "proof_of_achievement": [{"project_name": "...", "relevance": "...", "relevance_score": 0.0}],
    "pain_points": [{"pain": "...", "urgency": 1, "impact": 1, "evidence": ["..."]}],
    "confidence": 0.0
  },
  "talking_points": {"opening_hook": "...", "key_points": ["..."], "competitive_context": "...", "confidence": 0.0},
  "questions_to_ask": {"strategic": ["..."], "technical": ["..."], "business_impact": ["..."], "qualification": ["..."], "confidence": 0.0},
  "decision_makers": {"profiles": [{"name": "...", "title": "...", "linkedin_url": "...", "background_points": ["..."]}], "confidence": 0.0},
  "company_intelligence": {
    "industry": "...",
    "company_size": "...",
    "recent_news": [{"headline": "...", "date": "...", "significance": "..."}],
    "strategic_initiatives": ["..."],
    "confidence": 0.0
  },
  "research_limitations": ["..."],
  "overall_confidence": 0.0,
  "sources": ["..."]
}`

// Synthesize builds the prep report for one meeting. The returned report
// is always structurally valid; a zero overall confidence marks a
// degraded run.
func (s *Synthesizer) Synthesize(ctx context.Context, req model.PrepRequest, research *model.ResearchPackage, profile *model.UserProfile) *model.PrepReport {
	prompt, err := buildSynthesisPrompt(req, research, profile)
	if err != nil {
		return s.errorReport(req, err)
	}

	searcher := NewPortfolioSearcher(profile.Portfolio)

	run, err := resilience.Do(ctx, s.cfg.Retry, func(ctx context.Context) (*anthropic.ToolLoopResult, error) {
		return s.llm.RunWithTools(ctx, anthropic.ToolLoopRequest{
			Model:        s.cfg.Model,
			MaxTokens:    s.cfg.MaxTokens,
			System:       anthropic.BuildCachedSystemBlocks(synthesisSystemPrompt),
			Prompt:       prompt,
			Tools:        []anthropic.ToolBinding{portfolioTool(searcher)},
			MaxToolCalls: s.cfg.MaxToolCalls,
		})
	})
	if err != nil {
		return s.errorReport(req, err)
	}
	run.Usage.LogCost(s.cfg.Model, "synthesis")

	var report model.PrepReport
	if err := coerce.Into(run.Text, "prep_report", &report); err != nil {
		return s.errorReport(req, err)
	}

	report.Clamp()
	zap.L().Info("synthesis complete",
		zap.String("company", req.CompanyName),
		zap.Float64("confidence", report.OverallConfidence),
	)
	return &report
}

func (s *Synthesizer) errorReport(req model.PrepRequest, err error) *model.PrepReport {
	zap.L().Error("synthesis degraded to error report",
		zap.String("company", req.CompanyName),
		zap.Error(err),
	)
	return model.NewErrorReport(req.MeetingObjective, err.Error())
}

// portfolioTool exposes the seller's portfolio to the model as its one
// tool for this run.
func portfolioTool(searcher *PortfolioSearcher) anthropic.ToolBinding {
	return anthropic.ToolBinding{
		Name:        "search_portfolio",
		Description: "Search the seller's past projects for work relevant to the prospect. Returns scored matches, strongest first.",
		InputSchema: anthropic.ToolSchema{
			Properties: map[string]anthropic.Property{
				"query": {Type: "string", Description: "Terms describing the prospect's industry, needs, or situation"},
			},
			Required: []string{"query"},
		},
		Handler: func(_ context.Context, input json.RawMessage) (any, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, eris.Wrap(err, "synthesis: search_portfolio args")
			}
			matches := searcher.Search(args.Query)
			if matches == nil {
				matches = []Match{}
			}
			return matches, nil
		},
	}
}

func buildSynthesisPrompt(req model.PrepRequest, research *model.ResearchPackage, profile *model.UserProfile) (string, error) {
	researchJSON, err := json.MarshalIndent(research, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "synthesis: marshal research")
	}
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "synthesis: marshal profile")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Prepare a briefing for a meeting with %q.\n", req.CompanyName)
	fmt.Fprintf(&b, "Meeting objective: %s\n", req.MeetingObjective)
	if req.ContactPersonName != "" {
		fmt.Fprintf(&b, "Meeting contact: %s\n", req.ContactPersonName)
	}
	if req.MeetingDate != "" {
		fmt.Fprintf(&b, "Meeting date: %s\n", req.MeetingDate)
	}
	fmt.Fprintf(&b, "\nResearch package:\n%s\n", researchJSON)
	fmt.Fprintf(&b, "\nSeller profile:\n%s\n", profileJSON)
	return b.String(), nil
}
