package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/devagent-ai/devagent/pkg/budget"
	"github.com/devagent-ai/devagent/pkg/catalog"
	"github.com/devagent-ai/devagent/pkg/models"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	summaries []models.UsageSummary
	sessions  []models.Session
	requests  []models.SessionRequest
	lastQuery string
}

func (f *fakeTracker) Record(_ context.Context, _ models.UsageRecord) error { return nil }
func (f *fakeTracker) QueryByClient(_ context.Context, _ string, _ time.Time) ([]models.UsageRecord, error) {
	return nil, nil
}
func (f *fakeTracker) TotalByClient(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeTracker) TotalByClientAndProvider(_ context.Context, _ string, _ models.ProviderName, _ time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeTracker) Summary(_ context.Context, client string) ([]models.UsageSummary, error) {
	f.lastQuery = client
	return f.summaries, nil
}
func (f *fakeTracker) ResolveSession(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", nil
}
func (f *fakeTracker) ListSessions(_ context.Context, _ string) ([]models.Session, error) {
	return f.sessions, nil
}
func (f *fakeTracker) SessionRequests(_ context.Context, _ string) ([]models.SessionRequest, error) {
	return f.requests, nil
}
func (f *fakeTracker) Close() error { return nil }

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats() (models.CacheStats, error) { return f.stats, nil }

type fakeAuditor struct {
	opts    models.AuditQueryOpts
	entries []models.AuditEntry
}

func (f *fakeAuditor) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	f.opts = opts
	return f.entries, nil
}

type fakeRouter struct {
	got  models.Request
	resp models.Response
	err  error
}

func (f *fakeRouter) Route(_ context.Context, req models.Request) (models.Response, error) {
	f.got = req
	return f.resp, f.err
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func newServer(deps Deps) *Server {
	if deps.Tracker == nil {
		deps.Tracker = &fakeTracker{}
	}
	return New(deps, "test")
}

func TestInitialize(t *testing.T) {
	srv := newServer(Deps{})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "devagent" {
		t.Errorf("server name = %s, want devagent", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := newServer(Deps{})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallStats(t *testing.T) {
	tr := &fakeTracker{
		summaries: []models.UsageSummary{
			{Client: "10.0.0.1", Provider: models.ProviderGroq, Model: "gemma-7b-it", RequestCount: 10, TotalPrompt: 500, TotalCompletion: 200, TotalTokens: 700},
		},
	}
	srv := newServer(Deps{Tracker: tr})

	result := callTool(t, srv, "devagent_stats", `{"client":"10.0.0.1"}`)
	if !strings.Contains(result.Content[0].Text, "gemma-7b-it") {
		t.Errorf("expected gemma-7b-it in output, got: %s", result.Content[0].Text)
	}
	if tr.lastQuery != "10.0.0.1" {
		t.Errorf("client filter not passed, got %q", tr.lastQuery)
	}
}

func TestToolCallCostReport(t *testing.T) {
	tr := &fakeTracker{
		summaries: []models.UsageSummary{
			{Client: "a", Provider: models.ProviderGroq, Model: "mixtral-8x7b-32768", RequestCount: 3, TotalTokens: 15000},
		},
	}
	srv := newServer(Deps{Tracker: tr, Catalog: catalog.Default()})

	text := callTool(t, srv, "devagent_cost_report", `{}`).Content[0].Text
	if !strings.Contains(text, "mixtral-8x7b-32768") || !strings.Contains(text, "$0.0030") {
		t.Errorf("unexpected cost report: %s", text)
	}
}

func TestToolCallNotConfigured(t *testing.T) {
	srv := newServer(Deps{})
	for _, name := range []string{"devagent_cache_stats", "devagent_budget", "devagent_audit_search", "devagent_chat"} {
		result := callTool(t, srv, name, `{}`)
		if !strings.Contains(result.Content[0].Text, "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, result.Content[0].Text)
		}
	}
}

func TestToolCallCacheStats(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{Entries: 42, Hits: 10, Misses: 5}}
	srv := newServer(Deps{Cache: cache})

	text := callTool(t, srv, "devagent_cache_stats", "").Content[0].Text
	if !strings.Contains(text, "42") || !strings.Contains(text, "66.7%") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallBudget(t *testing.T) {
	e := budget.New([]models.BudgetPolicy{
		{Client: "*", MaxTokens: 1000, Period: models.BudgetDaily},
	}, &fakeTracker{})
	srv := newServer(Deps{Enforcer: e})

	text := callTool(t, srv, "devagent_budget", `{"client":"10.0.0.1"}`).Content[0].Text
	if !strings.Contains(text, "daily") || !strings.Contains(text, "1000") {
		t.Errorf("unexpected budget output: %s", text)
	}
}

func TestToolCallSessionDetail(t *testing.T) {
	tr := &fakeTracker{
		requests: []models.SessionRequest{
			{Seq: 1, Model: "gemma-7b-it", PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, ContextGrowth: 100},
		},
	}
	srv := newServer(Deps{Tracker: tr})

	text := callTool(t, srv, "devagent_session_detail", `{"session_id":"abc-123"}`).Content[0].Text
	if !strings.Contains(text, "150") {
		t.Errorf("expected 150 in output, got: %s", text)
	}
}

func TestToolCallSessionDetailMissingID(t *testing.T) {
	srv := newServer(Deps{})
	if !callTool(t, srv, "devagent_session_detail", `{}`).IsError {
		t.Error("expected isError=true for missing session_id")
	}
}

func TestToolCallAuditSearch(t *testing.T) {
	a := &fakeAuditor{entries: []models.AuditEntry{
		{RequestID: "req-1", Model: "gemma-7b-it", StatusCode: 500, Error: "All LLM providers failed"},
	}}
	srv := newServer(Deps{Auditor: a})

	text := callTool(t, srv, "devagent_audit_search", `{"provider":"groq","since":"2026-01-02","failed_only":true}`).Content[0].Text
	if !strings.Contains(text, "req-1") || !strings.Contains(text, "All LLM providers failed") {
		t.Errorf("unexpected audit output: %s", text)
	}
	if a.opts.Provider != models.ProviderGroq || !a.opts.FailedOnly || a.opts.Since.Day() != 2 {
		t.Errorf("unexpected query opts: %+v", a.opts)
	}

	if !callTool(t, srv, "devagent_audit_search", `{"since":"yesterday"}`).IsError {
		t.Error("expected error for bad since date")
	}
}

func TestToolCallModels(t *testing.T) {
	srv := newServer(Deps{})
	text := callTool(t, srv, "devagent_models", "").Content[0].Text
	for _, m := range catalog.Default().FallbackChain() {
		if !strings.Contains(text, m.ID) {
			t.Errorf("missing %s in: %s", m.ID, text)
		}
	}
}

func TestToolCallEstimate(t *testing.T) {
	srv := newServer(Deps{})
	text := callTool(t, srv, "devagent_estimate", `{"text":"abcdefgh","max_tokens":100}`).Content[0].Text
	if !strings.Contains(text, "Prompt tokens:          2") || !strings.Contains(text, "true") {
		t.Errorf("unexpected estimate: %s", text)
	}

	if !callTool(t, srv, "devagent_estimate", `{}`).IsError {
		t.Error("expected error for missing text")
	}
}

func TestToolCallChat(t *testing.T) {
	r := &fakeRouter{resp: models.Response{
		Content:  "hello there",
		Model:    "llama-3.1-8b-instant",
		Provider: models.ProviderGroq,
		Usage:    models.TokenUsage{TotalTokens: 12},
	}}
	srv := newServer(Deps{Router: r})

	text := callTool(t, srv, "devagent_chat", `{"prompt":"hi","system":"be brief","tier":"free","max_tokens":9000}`).Content[0].Text
	if !strings.Contains(text, "hello there") || !strings.Contains(text, "groq/llama-3.1-8b-instant") {
		t.Errorf("unexpected chat output: %s", text)
	}
	if len(r.got.Messages) != 2 || r.got.Messages[0].Role != models.RoleSystem {
		t.Errorf("unexpected messages: %+v", r.got.Messages)
	}
	if r.got.MaxTokens != 4096 || r.got.Tier != models.TierFree {
		t.Errorf("unexpected request: %+v", r.got)
	}
}

func TestToolCallChatErrors(t *testing.T) {
	r := &fakeRouter{err: errors.New("All LLM providers failed. Errors: groq/x: boom")}
	srv := newServer(Deps{Router: r})

	result := callTool(t, srv, "devagent_chat", `{"prompt":"hi"}`)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "All LLM providers failed") {
		t.Errorf("expected router error, got %+v", result)
	}

	if !callTool(t, srv, "devagent_chat", `{"prompt":"hi","tier":"gold"}`).IsError {
		t.Error("expected validation error for unknown tier")
	}
}

func TestUnknownTool(t *testing.T) {
	srv := newServer(Deps{})
	if !callTool(t, srv, "nope", `{}`).IsError {
		t.Error("expected isError for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := newServer(Deps{})

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := newServer(Deps{})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}
