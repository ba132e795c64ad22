package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/tokens"
	"github.com/devagent-ai/devagent/pkg/tracker"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// Tool argument structs.

type clientArgs struct {
	Client string `json:"client"`
}

type sessionDetailArgs struct {
	SessionID string `json:"session_id" validate:"required"`
}

type estimateArgs struct {
	Text      string `json:"text" validate:"required"`
	MaxTokens int    `json:"max_tokens" validate:"gte=0"`
}

type chatArgs struct {
	Prompt    string              `json:"prompt" validate:"required"`
	System    string              `json:"system"`
	Model     string              `json:"model"`
	Provider  models.ProviderName `json:"provider" validate:"omitempty,oneof=groq openrouter huggingface"`
	Tier      models.Tier         `json:"tier" validate:"omitempty,oneof=free mid high"`
	MaxTokens int                 `json:"max_tokens" validate:"gte=0"`
}

type auditSearchArgs struct {
	Model        string              `json:"model"`
	Provider     models.ProviderName `json:"provider"`
	Since        string              `json:"since"`
	ClientPrefix string              `json:"client_prefix"`
	SessionID    string              `json:"session_id"`
	FailedOnly   bool                `json:"failed_only"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"devagent_stats":          handleStats,
	"devagent_sessions":       handleSessions,
	"devagent_session_detail": handleSessionDetail,
	"devagent_budget":         handleBudget,
	"devagent_cache_stats":    handleCacheStats,
	"devagent_cost_report":    handleCostReport,
	"devagent_audit_search":   handleAuditSearch,
	"devagent_models":         handleModels,
	"devagent_estimate":       handleEstimate,
	"devagent_chat":           handleChat,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var clientSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"client": stringProp("Filter by client address (optional, omit for all clients)"),
	},
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "devagent_stats",
		Description: "Show aggregated token usage per client, provider and model.",
		InputSchema: clientSchema,
	},
	{
		Name:        "devagent_sessions",
		Description: "List tracked chat sessions, optionally filtered by client address.",
		InputSchema: clientSchema,
	},
	{
		Name:        "devagent_session_detail",
		Description: "Show per-request detail for a specific session, including context growth.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"session_id"},
			"properties": map[string]any{
				"session_id": stringProp("The session ID to inspect"),
			},
		},
	},
	{
		Name:        "devagent_budget",
		Description: "Show budget status (usage vs limits) for the policies matching a client address.",
		InputSchema: clientSchema,
	},
	{
		Name:        "devagent_cost_report",
		Description: "Show estimated spend per model using catalog rates.",
		InputSchema: clientSchema,
	},
	{
		Name:        "devagent_cache_stats",
		Description: "Show response cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "devagent_audit_search",
		Description: "Search the chat audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model":         stringProp("Filter by model (optional)"),
				"provider":      stringProp("Filter by provider: groq, openrouter or huggingface (optional)"),
				"since":         stringProp("Start date in YYYY-MM-DD format (optional)"),
				"client_prefix": stringProp("Filter by client hash prefix (optional)"),
				"session_id":    stringProp("Filter by session ID (optional)"),
				"failed_only":   map[string]any{"type": "boolean", "description": "Only show failed requests"},
			},
		},
	},
	{
		Name:        "devagent_models",
		Description: "List the model catalog in fallback order.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "devagent_estimate",
		Description: "Estimate prompt tokens for a text and check it against the request limit.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"text"},
			"properties": map[string]any{
				"text":       stringProp("Prompt text to estimate"),
				"max_tokens": map[string]any{"type": "integer", "description": "Requested completion tokens (optional)"},
			},
		},
	},
	{
		Name:        "devagent_chat",
		Description: "Send a prompt through the LLM router and return the first successful answer.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"prompt"},
			"properties": map[string]any{
				"prompt":     stringProp("User message"),
				"system":     stringProp("System message (optional)"),
				"model":      stringProp("Catalog model ID to start from (optional)"),
				"provider":   stringProp("Restrict model selection to a provider (optional)"),
				"tier":       stringProp("Force a tier: free, mid or high (optional)"),
				"max_tokens": map[string]any{"type": "integer", "description": "Completion token limit (optional)"},
			},
		},
	},
}

// decodeArgs unmarshals and validates tool arguments. Empty arguments decode
// to the zero value before validation.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
	}
	return validate.Struct(v)
}

func handleStats(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args clientArgs
	_ = decodeArgs(rawArgs, &args)
	rows, err := s.deps.Tracker.Summary(ctx, args.Client)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleSessions(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args clientArgs
	_ = decodeArgs(rawArgs, &args)
	sessions, err := s.deps.Tracker.ListSessions(ctx, args.Client)
	if err != nil {
		return errorResult("Error fetching sessions: " + err.Error())
	}
	return textResult(formatSessions(sessions))
}

func handleSessionDetail(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args sessionDetailArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("session_id is required")
	}
	reqs, err := s.deps.Tracker.SessionRequests(ctx, args.SessionID)
	if err != nil {
		return errorResult("Error fetching session detail: " + err.Error())
	}
	return textResult(formatSessionRequests(reqs))
}

func handleBudget(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Enforcer == nil {
		return textResult("Budget enforcement is not configured.")
	}
	var args clientArgs
	_ = decodeArgs(rawArgs, &args)
	statuses, err := s.deps.Enforcer.Status(ctx, args.Client)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}

func handleCostReport(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args clientArgs
	_ = decodeArgs(rawArgs, &args)
	rows, err := s.deps.Tracker.Summary(ctx, args.Client)
	if err != nil {
		return errorResult("Error fetching cost report: " + err.Error())
	}
	return textResult(formatCostReport(tracker.CostReport(rows, s.deps.Catalog)))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	_ = decodeArgs(rawArgs, &args)

	opts := models.AuditQueryOpts{
		Model:        args.Model,
		Provider:     args.Provider,
		ClientPrefix: args.ClientPrefix,
		SessionID:    args.SessionID,
		FailedOnly:   args.FailedOnly,
		Limit:        50,
	}
	if args.Since != "" {
		t, err := time.Parse(dateLayout, args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.deps.Auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleModels(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatModels(s.deps.Catalog.FallbackChain()))
}

func handleEstimate(_ context.Context, _ *Server, rawArgs json.RawMessage) ToolCallResult {
	var args estimateArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	req := models.Request{
		Messages:  []models.Message{{Role: models.RoleUser, Content: args.Text}},
		MaxTokens: tokens.CapRequested(args.MaxTokens),
	}
	return textResult(formatVerdict(tokens.PromptTokens(req.Messages), tokens.Check(req)))
}

func handleChat(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Router == nil {
		return textResult("Chat routing is not configured.")
	}
	var args chatArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	var msgs []models.Message
	if args.System != "" {
		msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: args.System})
	}
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: args.Prompt})

	resp, err := s.deps.Router.Route(ctx, models.Request{
		Messages:  msgs,
		MaxTokens: tokens.CapRequested(args.MaxTokens),
		Model:     args.Model,
		Provider:  args.Provider,
		Tier:      args.Tier,
	})
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatChat(resp))
}
