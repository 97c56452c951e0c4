package research

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prep-service/internal/model"
	"github.com/sells-group/prep-service/internal/resilience"
	"github.com/sells-group/prep-service/pkg/anthropic"
)

// fakeLLM scripts the agent run: each call pops the next behavior.
type fakeLLM struct {
	run   func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error)
	calls int
}

func (f *fakeLLM) RunWithTools(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
	f.calls++
	return f.run(ctx, req)
}

func testConfig() Config {
	return Config{
		Model:        "claude-sonnet-4-5-20250929",
		MaxTokens:    8192,
		MaxToolCalls: 10,
		Retry:        resilience.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}
}

const goodResearchJSON = `{
	"company_intelligence": {
		"name": "Acme Inc",
		"industry": "Manufacturing",
		"size": "200-500",
		"description": "Industrial widget maker",
		"recent_news": ["Raised Series B"],
		"strategic_initiatives": ["Automation rollout"]
	},
	"decision_makers": [
		{"name": "Jane Doe", "title": "VP Operations"}
	],
	"research_limitations": ["could not verify headcount"],
	"overall_confidence": 0.85,
	"sources_used": ["https://acme.example"]
}`

func TestResearch_Success(t *testing.T) {
	llm := &fakeLLM{run: func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		assert.Equal(t, "claude-sonnet-4-5-20250929", req.Model)
		assert.Len(t, req.Tools, 5)
		assert.Contains(t, req.Prompt, "Acme Inc")
		assert.Contains(t, req.Prompt, "book a demo")
		return &anthropic.ToolLoopResult{Text: goodResearchJSON, ToolCalls: 4}, nil
	}}
	o := NewOrchestrator(llm, &fakeSearch{}, &fakeScraper{}, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{
		CompanyName:      "Acme Inc",
		MeetingObjective: "book a demo",
	})

	require.True(t, result.Success)
	require.NotNil(t, result.ResearchData)
	assert.Equal(t, "Acme Inc", result.ResearchData.CompanyIntelligence.Name)
	assert.Equal(t, 0.85, result.ConfidenceScore)
	assert.Equal(t, []string{"https://acme.example"}, result.SourcesUsed)
	assert.Equal(t, 1, llm.calls)
}

func TestResearch_WrapperKeyUnwrapped(t *testing.T) {
	llm := &fakeLLM{run: func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		return &anthropic.ToolLoopResult{Text: `{"research_data":` + goodResearchJSON + `}`}, nil
	}}
	o := NewOrchestrator(llm, &fakeSearch{}, &fakeScraper{}, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{CompanyName: "Acme Inc", MeetingObjective: "demo"})
	require.True(t, result.Success)
	assert.Equal(t, "Acme Inc", result.ResearchData.CompanyIntelligence.Name)
}

func TestResearch_ConfidenceClamped(t *testing.T) {
	overconfident := `{"company_intelligence":{"name":"Acme"},"overall_confidence":1.6}`
	llm := &fakeLLM{run: func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		return &anthropic.ToolLoopResult{Text: overconfident}, nil
	}}
	o := NewOrchestrator(llm, &fakeSearch{}, &fakeScraper{}, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{CompanyName: "Acme", MeetingObjective: "demo"})
	require.True(t, result.Success)
	assert.Equal(t, 1.0, result.ConfidenceScore)
}

func TestResearch_ToolFailuresBecomeLimitations(t *testing.T) {
	// The fake run exercises a tool handler that fails, then answers. The
	// handler's failure note must land in research_limitations, and the
	// visited URL from a successful scrape must land in sources.
	scraper := &fakeScraper{err: eris.New("fetch timed out")}
	llm := &fakeLLM{run: func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		for _, tool := range req.Tools {
			if tool.Name == "scrape_website" {
				_, err := tool.Handler(ctx, json.RawMessage(`{"url":"https://acme.example"}`))
				assert.Error(t, err)
			}
		}
		return &anthropic.ToolLoopResult{Text: goodResearchJSON}, nil
	}}
	o := NewOrchestrator(llm, &fakeSearch{}, scraper, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{CompanyName: "Acme Inc", MeetingObjective: "demo"})
	require.True(t, result.Success)

	limitations := result.ResearchData.ResearchLimitations
	require.Len(t, limitations, 2)
	assert.Equal(t, "could not verify headcount", limitations[0])
	assert.Contains(t, limitations[1], "scrape_website failed")
}

func TestResearch_RetriesTransientFailure(t *testing.T) {
	llm := &fakeLLM{}
	llm.run = func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		if llm.calls == 1 {
			return nil, &anthropic.APIError{StatusCode: 529, Err: eris.New("overloaded")}
		}
		return &anthropic.ToolLoopResult{Text: goodResearchJSON}, nil
	}
	o := NewOrchestrator(llm, &fakeSearch{}, &fakeScraper{}, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{CompanyName: "Acme Inc", MeetingObjective: "demo"})
	assert.True(t, result.Success)
	assert.Equal(t, 2, llm.calls)
}

func TestResearch_ExhaustedRetriesFail(t *testing.T) {
	llm := &fakeLLM{run: func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		return nil, &anthropic.APIError{StatusCode: 503, Err: eris.New("unavailable")}
	}}
	o := NewOrchestrator(llm, &fakeSearch{}, &fakeScraper{}, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{CompanyName: "Acme Inc", MeetingObjective: "demo"})
	require.False(t, result.Success)
	assert.Equal(t, "Acme Inc", result.CompanyName)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 2, llm.calls)
}

func TestResearch_UnusableOutputFails(t *testing.T) {
	llm := &fakeLLM{run: func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		return &anthropic.ToolLoopResult{Text: "I could not find anything about this company."}, nil
	}}
	o := NewOrchestrator(llm, &fakeSearch{}, &fakeScraper{}, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{CompanyName: "Acme Inc", MeetingObjective: "demo"})
	require.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestResearch_MissingCompanyNameRejected(t *testing.T) {
	// Well-formed JSON with no company name is garbage, not success.
	llm := &fakeLLM{run: func(ctx context.Context, req anthropic.ToolLoopRequest) (*anthropic.ToolLoopResult, error) {
		return &anthropic.ToolLoopResult{Text: `{"company_intelligence":{"industry":"unknown"}}`}, nil
	}}
	o := NewOrchestrator(llm, &fakeSearch{}, &fakeScraper{}, &fakeNetwork{}, testConfig())

	result := o.Research(context.Background(), model.PrepRequest{CompanyName: "Acme Inc", MeetingObjective: "demo"})
	assert.False(t, result.Success)
}

func TestMergeSources(t *testing.T) {
	merged := mergeSources(
		[]string{"https://a.example", "https://b.example", ""},
		[]string{"https://b.example", "https://c.example"},
	)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, merged)
}
