package models

import (
	"errors"
	"fmt"
	"slices"
)

// ErrValidation indicates a request failed validation before reaching the router.
var ErrValidation = errors.New("validation error")

// Role tags the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat message.
// Images holds base64 payloads or data URLs attached by the chat panel.
type Message struct {
	Role    Role     `json:"role" validate:"required,oneof=system user assistant"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Request carries the messages and generation parameters for one chat call.
// Zero values mean "unset": MaxTokens 0, Temperature nil, empty Model/Provider/Tier.
// Requests are treated as values; use the With* helpers to derive adjusted copies.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	Model       string
	Provider    ProviderName
	Tier        Tier
}

// Validate checks the constraints every request must satisfy.
func (r Request) Validate() error {
	if r.Messages == nil {
		return fmt.Errorf("messages array is required: %w", ErrValidation)
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("message %d: invalid role %q: %w", i, m.Role, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	if r.Tier != "" && !r.Tier.Valid() {
		return fmt.Errorf("unknown tier %q: %w", r.Tier, ErrValidation)
	}
	if r.Provider != "" && !r.Provider.Valid() {
		return fmt.Errorf("unknown provider %q: %w", r.Provider, ErrValidation)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with r.
func (r Request) Clone() Request {
	out := r
	out.Messages = slices.Clone(r.Messages)
	for i := range out.Messages {
		out.Messages[i].Images = slices.Clone(out.Messages[i].Images)
	}
	if r.Temperature != nil {
		t := *r.Temperature
		out.Temperature = &t
	}
	return out
}

// WithMaxTokens returns a copy of r with MaxTokens set to n.
func (r Request) WithMaxTokens(n int) Request {
	out := r.Clone()
	out.MaxTokens = n
	return out
}

// WithModel returns a copy of r pinned to the given model and provider.
func (r Request) WithModel(m Model) Request {
	out := r.Clone()
	out.Model = m.ID
	out.Provider = m.Provider
	return out
}

// Response is the normalized result of a successful chat call.
type Response struct {
	Content   string       `json:"content"`
	Usage     TokenUsage   `json:"usage"`
	Model     string       `json:"model"`
	Provider  ProviderName `json:"provider"`
	Truncated bool         `json:"truncated"`
}

// SafetyVerdict is the outcome of checking a request against token limits.
type SafetyVerdict struct {
	Safe                 bool   `json:"safe"`
	RecommendedMaxTokens int    `json:"recommended_max_tokens"`
	Warning              string `json:"warning,omitempty"`
}
