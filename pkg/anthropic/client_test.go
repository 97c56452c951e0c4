package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenUsage_Add(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	u.Add(TokenUsage{
		InputTokens:              30,
		OutputTokens:             20,
		CacheCreationInputTokens: 2000,
		CacheReadInputTokens:     3000,
	})

	assert.Equal(t, int64(130), u.InputTokens)
	assert.Equal(t, int64(70), u.OutputTokens)
	assert.Equal(t, int64(2000), u.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), u.CacheReadInputTokens)
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	// Sonnet: $3 in + $15 out per MTok.
	assert.InDelta(t, 18.0, u.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)

	// Cache writes bill at 1.25x input, reads at 0.1x.
	cached := TokenUsage{CacheCreationInputTokens: 1_000_000, CacheReadInputTokens: 1_000_000}
	assert.InDelta(t, 3.0*1.25+3.0*0.1, cached.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
}

func TestTokenUsage_EstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000}
	assert.Equal(t, 0.0, u.EstimateCost("some-future-model"))
}

func TestExecuteTool_Success(t *testing.T) {
	c := &sdkClient{}
	handlers := map[string]ToolHandler{
		"echo": func(ctx context.Context, input json.RawMessage) (any, error) {
			var args struct {
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal(input, &args))
			return map[string]string{"echoed": args.Text}, nil
		},
	}

	calls := 0
	block := c.executeTool(context.Background(), handlers, sdk.ToolUseBlock{
		ID:    "tu-1",
		Name:  "echo",
		Input: json.RawMessage(`{"text":"hello"}`),
	}, &calls, 10)

	require.NotNil(t, block.OfToolResult)
	assert.Equal(t, "tu-1", block.OfToolResult.ToolUseID)
	assert.Equal(t, sdk.Bool(false), block.OfToolResult.IsError)
	assert.JSONEq(t, `{"echoed":"hello"}`, block.OfToolResult.Content[0].OfText.Text)
	assert.Equal(t, 1, calls)
}

func TestExecuteTool_HandlerErrorReportedToModel(t *testing.T) {
	c := &sdkClient{}
	handlers := map[string]ToolHandler{
		"flaky": func(ctx context.Context, input json.RawMessage) (any, error) {
			return nil, eris.New("upstream timed out")
		},
	}

	calls := 0
	block := c.executeTool(context.Background(), handlers, sdk.ToolUseBlock{
		ID: "tu-2", Name: "flaky", Input: json.RawMessage(`{}`),
	}, &calls, 10)

	require.NotNil(t, block.OfToolResult)
	assert.Equal(t, sdk.Bool(true), block.OfToolResult.IsError)
	assert.Contains(t, block.OfToolResult.Content[0].OfText.Text, "upstream timed out")
	// A failed call still consumes budget.
	assert.Equal(t, 1, calls)
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	c := &sdkClient{}
	calls := 0
	block := c.executeTool(context.Background(), map[string]ToolHandler{}, sdk.ToolUseBlock{
		ID: "tu-3", Name: "not_a_tool", Input: json.RawMessage(`{}`),
	}, &calls, 10)

	require.NotNil(t, block.OfToolResult)
	assert.Equal(t, sdk.Bool(true), block.OfToolResult.IsError)
	assert.Contains(t, block.OfToolResult.Content[0].OfText.Text, "not_a_tool")
}

func TestExecuteTool_BudgetExhausted(t *testing.T) {
	c := &sdkClient{}
	ran := false
	handlers := map[string]ToolHandler{
		"echo": func(ctx context.Context, input json.RawMessage) (any, error) {
			ran = true
			return "ok", nil
		},
	}

	calls := 10
	block := c.executeTool(context.Background(), handlers, sdk.ToolUseBlock{
		ID: "tu-4", Name: "echo", Input: json.RawMessage(`{}`),
	}, &calls, 10)

	require.NotNil(t, block.OfToolResult)
	assert.Equal(t, sdk.Bool(true), block.OfToolResult.IsError)
	assert.Equal(t, budgetExhaustedResult, block.OfToolResult.Content[0].OfText.Text)
	assert.False(t, ran)
	assert.Equal(t, 10, calls)
}

func TestToSDKTools(t *testing.T) {
	tools := []ToolBinding{
		{
			Name:        "web_search",
			Description: "Search the web",
			InputSchema: ToolSchema{
				Properties: map[string]Property{
					"query": {Type: "string", Description: "The search query"},
				},
				Required: []string{"query"},
			},
		},
	}

	out := toSDKTools(tools)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, "web_search", out[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, out[0].OfTool.InputSchema.Required)

	props := out[0].OfTool.InputSchema.Properties.(map[string]any)
	query := props["query"].(map[string]any)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "The search query", query["description"])
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "Plain block"},
		{Text: "Cached block", CacheControl: &CacheControl{TTL: "1h"}},
	}

	out := toSDKSystemBlocks(blocks)
	require.Len(t, out, 2)
	assert.Equal(t, "Plain block", out[0].Text)
	assert.Equal(t, "Cached block", out[1].Text)
	assert.NotEqual(t, out[0].CacheControl, out[1].CacheControl)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("system prompt")
	require.Len(t, blocks, 1)
	assert.Equal(t, "system prompt", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestNewToolResultBlock(t *testing.T) {
	block := newToolResultBlock("tu-9", "payload", false)
	require.NotNil(t, block.OfToolResult)
	assert.Equal(t, "tu-9", block.OfToolResult.ToolUseID)
	assert.Equal(t, "payload", block.OfToolResult.Content[0].OfText.Text)
}

func TestAPIError(t *testing.T) {
	t.Parallel()
	e := &APIError{StatusCode: 529, Err: eris.New("overloaded")}
	assert.Contains(t, e.Error(), "529")
	assert.Equal(t, 529, e.HTTPStatus())
	assert.Error(t, e.Unwrap())
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	client := NewClient("test-api-key")
	require.NotNil(t, client)
}
