package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client runs tool-augmented agent invocations against the Anthropic API.
type Client interface {
	RunWithTools(ctx context.Context, req ToolLoopRequest) (*ToolLoopResult, error)
}

// ToolLoopRequest describes one complete agent run: a prompt, the tools
// the model may call, and a hard cap on total tool invocations.
type ToolLoopRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Prompt      string
	Tools       []ToolBinding
	Temperature *float64

	// MaxToolCalls bounds total tool invocations across the run. Once
	// exhausted, further tool requests get an error result instructing
	// the model to answer with what it has. Default: 10.
	MaxToolCalls int
}

// ToolLoopResult is the final outcome of an agent run.
type ToolLoopResult struct {
	// Text is the concatenated text content of the final assistant turn.
	Text       string
	ToolCalls  int
	StopReason string
	Usage      TokenUsage
}

// ToolHandler executes one tool call. The input is the raw JSON arguments
// the model supplied. A handler error is reported back to the model as an
// error tool result, never surfaced as a run failure.
type ToolHandler func(ctx context.Context, input json.RawMessage) (any, error)

// ToolBinding pairs a tool definition with its handler.
type ToolBinding struct {
	Name        string
	Description string
	InputSchema ToolSchema
	Handler     ToolHandler
}

// ToolSchema is a JSON-schema object describing a tool's arguments.
type ToolSchema struct {
	Properties map[string]Property
	Required   []string
}

// Property describes a single tool argument.
type Property struct {
	Type        string
	Description string
}

// SystemBlock represents a system prompt block, optionally with cache
// control.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures prompt caching for a content block.
type CacheControl struct {
	TTL string // "5m" or "1h"
}

// TokenUsage tracks token consumption across an agent run.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Add accumulates usage from another response.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-6":            {15.00, 75.00},
}

// EstimateCost computes an estimated cost in USD from a TokenUsage and
// model ID. Returns 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * pricing[0]
	outCost := (float64(u.OutputTokens) / 1e6) * pricing[1]
	cacheWriteCost := (float64(u.CacheCreationInputTokens) / 1e6) * pricing[0] * 1.25
	cacheReadCost := (float64(u.CacheReadInputTokens) / 1e6) * pricing[0] * 0.1
	return inCost + outCost + cacheWriteCost + cacheReadCost
}

// LogCost logs token usage and estimated cost with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	cost := u.EstimateCost(model)
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", cost),
	)
}

// APIError wraps an Anthropic API failure with its HTTP status so retry
// classification does not have to parse message text.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic: HTTP %d: %s", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code for retry classification.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

// budgetExhaustedResult is what the model sees when it requests a tool
// call past the cap.
const budgetExhaustedResult = "tool budget exhausted; produce your final answer from the data gathered so far"

// RunWithTools drives the message loop: send, execute requested tools,
// feed results back, repeat until the model stops asking for tools or the
// tool budget runs out. Individual tool failures are reported to the model
// as error results and never abort the run.
func (c *sdkClient) RunWithTools(ctx context.Context, req ToolLoopRequest) (*ToolLoopResult, error) {
	maxToolCalls := req.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = 10
	}

	handlers := make(map[string]ToolHandler, len(req.Tools))
	for _, t := range req.Tools {
		handlers[t.Name] = t.Handler
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
		Tools: toSDKTools(req.Tools),
	}
	if len(req.System) > 0 {
		params.System = toSDKSystemBlocks(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	result := &ToolLoopResult{}

	// The model gets a few turns past the budget to wrap up after seeing
	// the exhaustion notice.
	maxTurns := maxToolCalls + 4

	for turn := 0; turn < maxTurns; turn++ {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			var apierr *sdk.Error
			if errors.As(err, &apierr) {
				return nil, &APIError{StatusCode: apierr.StatusCode, Err: err}
			}
			return nil, eris.Wrap(err, "anthropic: create message")
		}

		result.Usage.Add(TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		})
		result.StopReason = string(msg.StopReason)

		var text strings.Builder
		var toolResults []sdk.ContentBlockParamUnion

		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.AsText().Text)
			case "tool_use":
				tu := block.AsToolUse()
				toolResults = append(toolResults, c.executeTool(ctx, handlers, tu, &result.ToolCalls, maxToolCalls))
			}
		}

		if len(toolResults) == 0 || string(msg.StopReason) != "tool_use" {
			result.Text = text.String()
			return result, nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		params.Messages = append(params.Messages, sdk.NewUserMessage(toolResults...))
	}

	return nil, eris.Errorf("anthropic: agent did not finish within %d turns", maxTurns)
}

func (c *sdkClient) executeTool(
	ctx context.Context,
	handlers map[string]ToolHandler,
	tu sdk.ToolUseBlock,
	toolCalls *int,
	maxToolCalls int,
) sdk.ContentBlockParamUnion {
	if *toolCalls >= maxToolCalls {
		zap.L().Warn("tool budget exhausted", zap.String("tool", tu.Name))
		return newToolResultBlock(tu.ID, budgetExhaustedResult, true)
	}
	*toolCalls++

	handler, ok := handlers[tu.Name]
	if !ok {
		return newToolResultBlock(tu.ID, fmt.Sprintf("unknown tool %q", tu.Name), true)
	}

	out, err := handler(ctx, tu.Input)
	if err != nil {
		zap.L().Warn("tool call failed",
			zap.String("tool", tu.Name),
			zap.Error(err),
		)
		return newToolResultBlock(tu.ID, err.Error(), true)
	}

	buf, err := json.Marshal(out)
	if err != nil {
		return newToolResultBlock(tu.ID, fmt.Sprintf("marshal tool result: %v", err), true)
	}
	return newToolResultBlock(tu.ID, string(buf), false)
}

// --- SDK type conversion helpers ---

func newToolResultBlock(toolUseID, content string, isError bool) sdk.ContentBlockParamUnion {
	return sdk.ContentBlockParamUnion{
		OfToolResult: &sdk.ToolResultBlockParam{
			ToolUseID: toolUseID,
			IsError:   sdk.Bool(isError),
			Content: []sdk.ToolResultBlockParamContentUnion{
				{OfText: &sdk.TextBlockParam{Text: content}},
			},
		},
	}
}

func toSDKTools(tools []ToolBinding) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		properties := make(map[string]any, len(t.InputSchema.Properties))
		for name, prop := range t.InputSchema.Properties {
			p := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				p["description"] = prop.Description
			}
			properties[name] = p
		}

		out = append(out, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Type:       "object",
					Properties: properties,
					Required:   t.InputSchema.Required,
				},
			},
		})
	}
	return out
}

func toSDKSystemBlocks(blocks []SystemBlock) []sdk.TextBlockParam {
	out := make([]sdk.TextBlockParam, len(blocks))
	for i, b := range blocks {
		out[i] = sdk.TextBlockParam{
			Text: b.Text,
		}
		if b.CacheControl != nil {
			cc := sdk.NewCacheControlEphemeralParam()
			if b.CacheControl.TTL != "" {
				cc.TTL = sdk.CacheControlEphemeralTTL(b.CacheControl.TTL)
			}
			out[i].CacheControl = cc
		}
	}
	return out
}

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 1-hour TTL, so repeated agent runs reuse the warm
// prompt cache instead of re-ingesting the full system prompt.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}
