package models

import "time"

// TokenUsage is the token breakdown reported for one chat call.
type TokenUsage struct {
	PromptTokens     int          `json:"promptTokens"`
	CompletionTokens int          `json:"completionTokens"`
	TotalTokens      int          `json:"totalTokens"`
	Model            string       `json:"model"`
	Provider         ProviderName `json:"provider"`
}

// UsageRecord tracks per-request token usage for a client.
type UsageRecord struct {
	ID               int64        `json:"id"`
	Client           string       `json:"client"`
	Model            string       `json:"model"`
	Provider         ProviderName `json:"provider"`
	SessionID        string       `json:"session_id,omitempty"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	TotalTokens      int          `json:"total_tokens"`
	Truncated        bool         `json:"truncated"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Session groups related chat requests into a conversation.
type Session struct {
	ID           string    `json:"id"`
	Client       string    `json:"client"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	RequestCount int       `json:"request_count"`
	TotalTokens  int       `json:"total_tokens"`
}

// SessionRequest represents a single request within a session, with context growth info.
type SessionRequest struct {
	Seq              int       `json:"seq"`
	CreatedAt        time.Time `json:"created_at"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	ContextGrowth    int       `json:"context_growth"`
}

// UsageSummary aggregates usage per client, provider and model.
type UsageSummary struct {
	Client          string       `json:"client"`
	Provider        ProviderName `json:"provider"`
	Model           string       `json:"model"`
	RequestCount    int          `json:"request_count"`
	TotalPrompt     int          `json:"total_prompt"`
	TotalCompletion int          `json:"total_completion"`
	TotalTokens     int          `json:"total_tokens"`
	Truncated       int          `json:"truncated"`
}

// CostReport is an estimated spend row for one model.
type CostReport struct {
	Model           string       `json:"model"`
	Provider        ProviderName `json:"provider"`
	Tier            Tier         `json:"tier"`
	RequestCount    int          `json:"request_count"`
	TotalTokens     int64        `json:"total_tokens"`
	CostPer1kTokens float64      `json:"cost_per_1k_tokens"`
	EstimatedCost   float64      `json:"estimated_cost"`
}
