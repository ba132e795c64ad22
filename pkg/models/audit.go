package models

import "time"

// AuditEntry represents a single audited chat request/response pair.
type AuditEntry struct {
	RequestID        string            `json:"request_id"`
	ClientHash       string            `json:"client_hash"`
	ClientPrefix     string            `json:"client_prefix"`
	Model            string            `json:"model"`
	Provider         ProviderName      `json:"provider"`
	SessionID        string            `json:"session_id"`
	RequestBody      string            `json:"request_body,omitempty"`
	ResponseBody     string            `json:"response_body,omitempty"`
	RequestHeaders   map[string]string `json:"request_headers,omitempty"`
	StatusCode       int               `json:"status_code"`
	Error            string            `json:"error,omitempty"`
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
	TotalTokens      int               `json:"total_tokens"`
	LatencyMs        int64             `json:"latency_ms"`
	CreatedAt        time.Time         `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"` // "prompts", "responses", "metadata"
	ExcludeModels []string `yaml:"exclude_models"`
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Model        string
	Provider     ProviderName
	Since        time.Time
	ClientPrefix string
	SessionID    string
	RequestID    string
	FailedOnly   bool
	Limit        int
}

// AuditStat holds aggregate audit counts for a model/day combination.
type AuditStat struct {
	Model    string
	Day      string
	Count    int
	Failures int
}
